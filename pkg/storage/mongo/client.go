// Package mongo stores snapshots and history in MongoDB collections.
package mongo

import (
	"context"
	"fmt"
	"time"

	"cryptoetl/config"
	"cryptoetl/pkg/storage"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client   *mongo.Client
	snapshot *mongo.Collection
	history  *mongo.Collection
}

var (
	_ storage.SnapshotStore = (*Store)(nil)
	_ storage.HistoryStore  = (*Store)(nil)
	_ storage.Provisioner   = (*Store)(nil)
	_ storage.Pinger        = (*Store)(nil)
)

// Open connects to cfg.URI and pings the primary within timeout.
func Open(ctx context.Context, cfg config.MongoConfig, timeout time.Duration) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is empty")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	s := New(client, cfg.Database)
	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		snapshot: db.Collection(storage.SnapshotCollection),
		history:  db.Collection(storage.HistoryCollection),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes both collections.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.snapshot.Drop(ctx); err != nil {
		return err
	}
	return s.history.Drop(ctx)
}
