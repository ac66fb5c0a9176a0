// Package extract fetches one page of CoinGecko market data with bounded
// retries and archives the raw payload.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoetl/internal/market/archive"
	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/coingecko"

	"go.uber.org/zap"
)

// State names a step of the retry state machine.
type State string

const (
	StateAttempting  State = "attempting"
	StateRateLimited State = "rate_limited"
	StateBackingOff  State = "backing_off"
	StateExhausted   State = "exhausted"
)

// Outcome tags the result of a Fetch.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeRateLimitExhausted: every remaining attempt was answered with 429.
	// The caller gets no data and no error to raise.
	OutcomeRateLimitExhausted
	// OutcomeFailed: the final attempt failed for any other reason.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimitExhausted:
		return "rate_limit_exhausted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the tagged result of one Fetch.
type Result struct {
	Outcome  Outcome
	Records  []model.RawMarketRecord // set for OutcomeOK, possibly empty
	Err      error                   // cause for OutcomeFailed, last 429 for OutcomeRateLimitExhausted
	Attempts int
}

// Request selects the page to fetch.
type Request struct {
	Currency string
	PerPage  int
	Page     int
}

// DefaultRequest is the first 20 coins by market cap, priced in USD.
func DefaultRequest() Request {
	return Request{Currency: "usd", PerPage: 20, Page: 1}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Currency) == "" {
		return errors.New("extract: currency must not be empty")
	}
	if r.PerPage <= 0 {
		return fmt.Errorf("extract: page size must be positive, got %d", r.PerPage)
	}
	if r.Page <= 0 {
		return fmt.Errorf("extract: page must be positive, got %d", r.Page)
	}
	return nil
}

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts   int
	Backoff       []time.Duration // indexed by attempt; the last entry repeats
	RateLimitWait time.Duration   // multiplied by the 1-based attempt number
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		Backoff:       []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		RateLimitWait: 30 * time.Second,
	}
}

func (p Policy) backoff(attemptIndex int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attemptIndex >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attemptIndex]
}

// MarketsClient is the part of the CoinGecko client the extractor needs.
type MarketsClient interface {
	GetMarkets(ctx context.Context, q coingecko.MarketsQuery) (*coingecko.MarketsPage, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	Client  MarketsClient
	Archive archive.Sink // nil disables archiving
	Policy  Policy
	Sleep   SleepFunc        // defaults to a context-aware timer
	Now     func() time.Time // archive file timestamps
	Logger  *zap.Logger
}

type Extractor struct {
	client  MarketsClient
	archive archive.Sink
	policy  Policy
	sleep   SleepFunc
	now     func() time.Time
	log     *zap.Logger
}

func New(opts Options) *Extractor {
	e := &Extractor{
		client:  opts.Client,
		archive: opts.Archive,
		policy:  opts.Policy,
		sleep:   opts.Sleep,
		now:     opts.Now,
		log:     opts.Logger,
	}
	if e.archive == nil {
		e.archive = archive.Discard{}
	}
	if e.policy.MaxAttempts <= 0 {
		e.policy = DefaultPolicy()
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Fetch runs the retry state machine for one page.
func (e *Extractor) Fetch(ctx context.Context, req Request) Result {
	if err := req.validate(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	query := coingecko.MarketsQuery{VsCurrency: req.Currency, PerPage: req.PerPage, Page: req.Page}
	log := e.log.With(zap.String("currency", req.Currency), zap.Int("page", req.Page), zap.Int("per_page", req.PerPage))
	log.Info("starting fetch")

	var (
		state   = StateAttempting
		attempt int // attempts made so far
		lastErr error
	)

	for {
		switch state {
		case StateAttempting:
			page, err := e.client.GetMarkets(ctx, query)
			attempt++
			if err == nil {
				return e.succeed(log, page, attempt)
			}
			lastErr = err

			switch {
			case ctx.Err() != nil:
				log.Warn("fetch cancelled", zap.Int("attempt", attempt), zap.Error(err))
				return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("extract: %w", ctx.Err()), Attempts: attempt}
			case attempt >= e.policy.MaxAttempts:
				state = StateExhausted
			case isRateLimited(err):
				state = StateRateLimited
			default:
				state = StateBackingOff
			}

		case StateRateLimited:
			wait := time.Duration(attempt) * e.policy.RateLimitWait
			log.Warn("rate limit hit (429)",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", e.policy.MaxAttempts),
				zap.Duration("sleep", wait))
			if err := e.sleep(ctx, wait); err != nil {
				return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("extract: %w", err), Attempts: attempt}
			}
			state = StateAttempting

		case StateBackingOff:
			wait := e.policy.backoff(attempt - 1)
			log.Error("attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(lastErr))
			if err := e.sleep(ctx, wait); err != nil {
				return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("extract: %w", err), Attempts: attempt}
			}
			state = StateAttempting

		case StateExhausted:
			if isRateLimited(lastErr) {
				log.Error("rate limit persisted through all attempts; returning no data", zap.Int("attempts", attempt))
				return Result{Outcome: OutcomeRateLimitExhausted, Err: lastErr, Attempts: attempt}
			}
			log.Error("max retries reached, extraction failed", zap.Int("attempts", attempt), zap.Error(lastErr))
			return Result{
				Outcome:  OutcomeFailed,
				Err:      fmt.Errorf("extract: %d attempts exhausted: %w", attempt, lastErr),
				Attempts: attempt,
			}
		}
	}
}

func (e *Extractor) succeed(log *zap.Logger, page *coingecko.MarketsPage, attempt int) Result {
	log.Info("fetched markets", zap.Int("coins", len(page.Records)), zap.Int("attempt", attempt))

	// archiving is best effort; the fetched data is returned regardless
	if path, err := e.archive.Save(e.now(), page.Raw); err != nil {
		log.Warn("failed to archive raw payload", zap.Error(err))
	} else if path != "" {
		log.Info("raw payload archived", zap.String("path", path))
	}

	records := make([]model.RawMarketRecord, 0, len(page.Records))
	for _, r := range page.Records {
		records = append(records, model.RawMarketRecord(r))
	}
	return Result{Outcome: OutcomeOK, Records: records, Attempts: attempt}
}

func isRateLimited(err error) bool {
	var apiErr *coingecko.APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
