// Package runstate remembers the most recent run summary so the dashboard
// can show it without triggering a run.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoetl/internal/market/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKey is where the last summary is stored in Redis.
const DefaultKey = "cryptoetl:last_run"

// Store records and returns the last run summary.
type Store interface {
	Record(ctx context.Context, s model.RunSummary) error
	// Last returns nil, nil when no run has been recorded.
	Last(ctx context.Context) (*model.RunSummary, error)
	// ObserveRun records a finished run, logging instead of failing.
	ObserveRun(ctx context.Context, s model.RunSummary)
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*Memory)(nil)
)

type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisStore connects to addr and pings it. ttl 0 keeps the key forever.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration, log *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RedisStore{client: client, key: DefaultKey, ttl: ttl, log: log}, nil
}

func (r *RedisStore) Record(ctx context.Context, s model.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set last run in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Last(ctx context.Context) (*model.RunSummary, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last run from redis: %w", err)
	}

	var s model.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}
	return &s, nil
}

// ObserveRun records s; failures are logged only.
func (r *RedisStore) ObserveRun(ctx context.Context, s model.RunSummary) {
	if err := r.Record(ctx, s); err != nil {
		r.log.Warn("failed to record last run", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Memory keeps the last summary in process.
type Memory struct {
	mu   sync.RWMutex
	last *model.RunSummary
}

func (m *Memory) Record(_ context.Context, s model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &s
	return nil
}

func (m *Memory) Last(context.Context) (*model.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil, nil
	}
	cp := *m.last
	return &cp, nil
}

func (m *Memory) ObserveRun(ctx context.Context, s model.RunSummary) {
	_ = m.Record(ctx, s)
}
