package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureSchema creates the indexes both collections rely on. Creating an index
// that already exists with the same keys and options is a no-op.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.snapshot.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "coin_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create snapshot index: %w", err)
	}

	_, err = s.history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "extracted_at", Value: -1}}},
		{Keys: bson.D{{Key: "coin_id", Value: 1}, {Key: "extracted_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}
	return nil
}
