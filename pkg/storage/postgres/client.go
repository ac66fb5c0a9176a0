package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoetl/config"
	"cryptoetl/pkg/storage"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pgErrUniqueViolation = "23505"

// Store is the gorm-backed snapshot and history backend.
type Store struct {
	DB *gorm.DB
}

var (
	_ storage.SnapshotStore = (*Store)(nil)
	_ storage.HistoryStore  = (*Store)(nil)
	_ storage.Provisioner   = (*Store)(nil)
	_ storage.Pinger        = (*Store)(nil)
)

// NewClient opens a connection for dsn. Pool settings come from cfg when given.
func NewClient(dsn string, pool *config.PostgresConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if pool != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
		}
		if pool.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
		}
		if pool.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
		}
	}

	return &Store{DB: db}, nil
}

// Open connects using cfg and verifies the connection within timeout.
func Open(ctx context.Context, cfg config.PostgresConfig, timeout time.Duration) (*Store, error) {
	s, err := NewClient(cfg.DSN(), &cfg)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) IsHealthy(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

func (s *Store) Close() error {
	db, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}

// classify maps driver errors onto storage sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
