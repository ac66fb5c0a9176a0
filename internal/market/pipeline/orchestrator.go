// Package pipeline sequences one Extract → Transform → Load run and reports it
// as a RunSummary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoetl/internal/market/extract"
	"cryptoetl/internal/market/model"
	"cryptoetl/internal/market/transform"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Extractor interface {
	Fetch(ctx context.Context, req extract.Request) extract.Result
}

type Transformer interface {
	Transform(raw []model.RawMarketRecord) transform.Batch
}

type Loader interface {
	UpsertLatest(ctx context.Context, docs []model.MarketDocument) model.UpsertSummary
	InsertHistory(ctx context.Context, docs []model.MarketDocument) int
}

// Observer is told about every finished run, whatever its status.
type Observer interface {
	ObserveRun(ctx context.Context, summary model.RunSummary)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, summary model.RunSummary)

func (f ObserverFunc) ObserveRun(ctx context.Context, s model.RunSummary) { f(ctx, s) }

var (
	errEmptyExtract   = errors.New("no data extracted")
	errEmptyTransform = errors.New("no documents after transformation")
)

type Options struct {
	Extractor   Extractor
	Transformer Transformer
	Loader      Loader
	Request     extract.Request // zero value means extract.DefaultRequest()
	Observers   []Observer
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

type Orchestrator struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	request     extract.Request
	observers   []Observer
	log         *zap.Logger
	now         func() time.Time
	newID       func() string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		extractor:   opts.Extractor,
		transformer: opts.Transformer,
		loader:      opts.Loader,
		request:     opts.Request,
		observers:   opts.Observers,
		log:         opts.Logger,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if o.request == (extract.Request{}) {
		o.request = extract.DefaultRequest()
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Run executes one pipeline run. It always returns a summary: errors and
// panics end up in Status and ErrorMessage.
func (o *Orchestrator) Run(ctx context.Context, saveHistory bool) (summary model.RunSummary) {
	start := o.now()
	summary = model.RunSummary{
		RunID: o.newID(),
		RanAt: start.UTC(),
	}
	log := o.log.With(zap.String("run_id", summary.RunID))
	log.Info("starting ETL pipeline", zap.Bool("save_history", saveHistory))

	defer func() {
		if r := recover(); r != nil {
			summary.Status = model.StatusError
			summary.ErrorMessage = fmt.Sprintf("panic: %v", r)
			summary.DurationSeconds = nil
			log.Error("pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		o.notify(ctx, log, summary)
	}()

	err := o.run(ctx, log, saveHistory, &summary)
	switch {
	case err == nil:
		elapsed := o.now().Sub(start).Seconds()
		summary.Status = model.StatusSuccess
		summary.DurationSeconds = &elapsed
		log.Info("pipeline completed successfully",
			zap.Float64("duration_seconds", elapsed),
			zap.Int("transformed", summary.Transformed),
			zap.Int("history_inserted", summary.HistoryInserted))
	case errors.Is(err, errEmptyExtract), errors.Is(err, errEmptyTransform):
		summary.Status = model.StatusFailed
		log.Warn("pipeline stopped early", zap.Error(err))
	default:
		summary.Status = model.StatusError
		summary.ErrorMessage = err.Error()
		log.Error("pipeline failed", zap.Error(err))
	}
	return summary
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, saveHistory bool, summary *model.RunSummary) error {
	res := o.extractor.Fetch(ctx, o.request)
	summary.ExtractAttempts = res.Attempts
	summary.Fetched = len(res.Records)

	switch res.Outcome {
	case extract.OutcomeOK:
	case extract.OutcomeRateLimitExhausted:
		log.Warn("rate limit exhausted; treating as empty extraction", zap.Int("attempts", res.Attempts))
		return errEmptyExtract
	default:
		if res.Err == nil {
			return fmt.Errorf("extraction failed (%s)", res.Outcome)
		}
		return res.Err
	}
	if len(res.Records) == 0 {
		return errEmptyExtract
	}

	batch := o.transformer.Transform(res.Records)
	summary.Transformed = len(batch.Docs)
	summary.Skipped = len(batch.Skipped)
	if len(batch.Docs) == 0 {
		return errEmptyTransform
	}

	summary.Upsert = o.loader.UpsertLatest(ctx, batch.Docs)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted during upsert: %w", err)
	}

	if saveHistory {
		summary.HistoryInserted = o.loader.InsertHistory(ctx, batch.Docs)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted during history append: %w", err)
		}
	} else {
		log.Info("history save skipped")
	}
	return nil
}

// notify logs and swallows observer panics.
func (o *Orchestrator) notify(ctx context.Context, log *zap.Logger, summary model.RunSummary) {
	for _, obs := range o.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("run observer panicked", zap.Any("panic", r))
				}
			}()
			obs.ObserveRun(ctx, summary)
		}()
	}
}
