package mongo

import (
	"context"
	"fmt"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) UpsertSnapshot(ctx context.Context, doc *model.MarketDocument) (storage.UpsertResult, error) {
	if doc == nil || doc.CoinID == "" {
		return storage.UpsertResult{}, storage.ErrInvalidInput
	}

	row := *doc
	row.ExtractedAt = row.ExtractedAt.UTC()

	res, err := s.snapshot.UpdateOne(ctx,
		bson.M{"coin_id": doc.CoinID},
		bson.M{"$set": row},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.UpsertResult{}, fmt.Errorf("upsert %s: %w", doc.CoinID, storage.ErrDuplicateKey)
		}
		return storage.UpsertResult{}, fmt.Errorf("upsert %s: %w", doc.CoinID, err)
	}

	return storage.UpsertResult{
		Matched:  int(res.MatchedCount),
		Modified: int(res.ModifiedCount),
		Upserted: res.UpsertedID != nil,
	}, nil
}

// ListSnapshots sorts ranked rows first. Mongo orders null before numbers, so
// the rank-less rows are fetched separately.
func (s *Store) ListSnapshots(ctx context.Context) ([]model.MarketDocument, error) {
	ranked, err := s.findSnapshots(ctx,
		bson.M{"market_cap_rank": bson.M{"$ne": nil}},
		bson.D{{Key: "market_cap_rank", Value: 1}, {Key: "coin_id", Value: 1}})
	if err != nil {
		return nil, err
	}
	unranked, err := s.findSnapshots(ctx,
		bson.M{"market_cap_rank": nil},
		bson.D{{Key: "coin_id", Value: 1}})
	if err != nil {
		return nil, err
	}
	return append(ranked, unranked...), nil
}

func (s *Store) findSnapshots(ctx context.Context, filter bson.M, sort bson.D) ([]model.MarketDocument, error) {
	cur, err := s.snapshot.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := []model.MarketDocument{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	for i := range out {
		out[i].ExtractedAt = out[i].ExtractedAt.UTC()
	}
	return out, nil
}
