// Package bootstrap opens the configured storage backends.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"cryptoetl/config"
	"cryptoetl/pkg/storage"
	"cryptoetl/pkg/storage/clickhouse"
	"cryptoetl/pkg/storage/memory"
	"cryptoetl/pkg/storage/mongo"
	"cryptoetl/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Stores holds the opened backends. A driver used by both write paths is
// opened once and shared.
type Stores struct {
	Snapshots storage.SnapshotStore
	History   storage.HistoryStore

	// Checks is keyed by driver name.
	Checks map[string]storage.Pinger

	provisioners map[string]storage.Provisioner
	closers      []func(context.Context) error
	log          *zap.Logger
}

// Open connects to every driver named in cfg.Store.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stores{
		Checks:       make(map[string]storage.Pinger),
		provisioners: make(map[string]storage.Provisioner),
		log:          log,
	}

	backends := make(map[string]any)
	for _, driver := range []string{cfg.Store.SnapshotDriver, cfg.Store.HistoryDriver} {
		if _, ok := backends[driver]; ok {
			continue
		}
		b, err := s.open(ctx, cfg, driver)
		if err != nil {
			s.Close(context.Background())
			return nil, err
		}
		backends[driver] = b
		log.Info("store connected", zap.String("driver", driver))
	}

	snap, ok := backends[cfg.Store.SnapshotDriver].(storage.SnapshotStore)
	if !ok {
		s.Close(context.Background())
		return nil, fmt.Errorf("driver %q cannot hold snapshots", cfg.Store.SnapshotDriver)
	}
	hist, ok := backends[cfg.Store.HistoryDriver].(storage.HistoryStore)
	if !ok {
		s.Close(context.Background())
		return nil, fmt.Errorf("driver %q cannot hold history", cfg.Store.HistoryDriver)
	}
	s.Snapshots, s.History = snap, hist
	return s, nil
}

func (s *Stores) open(ctx context.Context, cfg *config.Config, driver string) (any, error) {
	timeout := cfg.Store.ConnectTimeout

	switch driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Postgres, timeout)
		if err != nil {
			return nil, err
		}
		s.track(driver, pg, pg, func(context.Context) error { return pg.Close() })
		return pg, nil

	case config.DriverMongo:
		m, err := mongo.Open(ctx, cfg.Mongo, timeout)
		if err != nil {
			return nil, err
		}
		s.track(driver, m, m, m.Close)
		return m, nil

	case config.DriverClickHouse:
		connectCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ch, err := clickhouse.Open(connectCtx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		s.track(driver, ch, ch, func(context.Context) error { return ch.Close() })
		return ch, nil

	case config.DriverMemory:
		m := memory.New()
		s.track(driver, m, m, nil)
		return m, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func (s *Stores) track(driver string, p storage.Pinger, prov storage.Provisioner, closeFn func(context.Context) error) {
	s.Checks[driver] = p
	s.provisioners[driver] = prov
	if closeFn != nil {
		s.closers = append(s.closers, closeFn)
	}
}

// EnsureSchema provisions tables, collections and indexes on every backend.
func (s *Stores) EnsureSchema(ctx context.Context) error {
	var errs []error
	for driver, p := range s.provisioners {
		if err := p.EnsureSchema(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", driver, err))
			continue
		}
		s.log.Info("schema ready", zap.String("driver", driver))
	}
	return errors.Join(errs...)
}

// Ping checks every backend and returns the joined failures.
func (s *Stores) Ping(ctx context.Context) error {
	var errs []error
	for driver, p := range s.Checks {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", driver, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Warn("failed to close store", zap.Error(err))
		}
	}
	s.closers = nil
}

// CreateDatabase creates the Postgres database when a write path uses it.
func CreateDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Store.Uses(config.DriverPostgres) {
		return nil
	}
	created, err := postgres.CreateDatabase(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("create postgres database: %w", err)
	}
	if created {
		log.Info("postgres database created", zap.String("dbname", cfg.Postgres.DBName))
	}
	return nil
}
