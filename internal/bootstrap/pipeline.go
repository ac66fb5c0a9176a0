package bootstrap

import (
	"cryptoetl/config"
	"cryptoetl/internal/market/archive"
	"cryptoetl/internal/market/extract"
	"cryptoetl/internal/market/load"
	"cryptoetl/internal/market/pipeline"
	"cryptoetl/internal/market/transform"
	"cryptoetl/pkg/coingecko"

	"go.uber.org/zap"
)

// NewPipeline builds the Extract → Transform → Load orchestrator from cfg.
func NewPipeline(cfg *config.Config, stores *Stores, log *zap.Logger, observers ...pipeline.Observer) *pipeline.Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	cg := cfg.CoinGecko

	var opts []coingecko.Option
	if cg.APIKey != "" {
		opts = append(opts, coingecko.WithAPIKey(cg.APIKey))
	}
	client := coingecko.NewRESTClient(cg.BaseURL, cg.Timeout, opts...)

	var sink archive.Sink = archive.Discard{}
	if cfg.Archive.Enabled {
		sink = archive.NewDir(cfg.Archive.Dir)
	}

	extractor := extract.New(extract.Options{
		Client:  client,
		Archive: sink,
		Policy: extract.Policy{
			MaxAttempts:   cg.MaxAttempts,
			Backoff:       cg.Backoff,
			RateLimitWait: cg.RateLimitWait,
		},
		Logger: log.Named("extract"),
	})

	return pipeline.New(pipeline.Options{
		Extractor:   extractor,
		Transformer: transform.New(log.Named("transform")),
		Loader:      load.New(stores.Snapshots, stores.History, log.Named("load")),
		Request: extract.Request{
			Currency: cg.Currency,
			PerPage:  cg.PerPage,
			Page:     cg.Page,
		},
		Observers: observers,
		Logger:    log.Named("pipeline"),
	})
}
