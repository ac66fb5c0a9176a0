package mongo

import (
	"context"
	"errors"
	"fmt"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AppendHistory runs an unordered InsertMany. On a bulk write exception every
// document without a write error counts as inserted.
func (s *Store) AppendHistory(ctx context.Context, docs []model.MarketDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	rows := make([]interface{}, len(docs))
	for i, d := range docs {
		d.ExtractedAt = d.ExtractedAt.UTC()
		rows[i] = d
	}

	res, err := s.history.InsertMany(ctx, rows, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(res.InsertedIDs), nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return 0, fmt.Errorf("insert history: %w", err)
	}

	failed := make([]storage.RowError, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		rowErr := storage.RowError{Index: we.Index, Err: errors.New(we.Message)}
		if we.Index >= 0 && we.Index < len(docs) {
			rowErr.CoinID = docs[we.Index].CoinID
		}
		if we.Code == 11000 {
			rowErr.Err = fmt.Errorf("%w: %s", storage.ErrDuplicateKey, we.Message)
		}
		failed = append(failed, rowErr)
	}

	inserted := len(docs) - len(failed)
	if inserted < 0 {
		inserted = 0
	}
	return inserted, &storage.BulkInsertError{Inserted: inserted, Failed: failed}
}

func (s *Store) HistoryByCoin(ctx context.Context, coinID string, limit int) ([]model.MarketDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "extracted_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.history.Find(ctx, bson.M{"coin_id": coinID}, opts)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", coinID, err)
	}
	out := []model.MarketDocument{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	for i := range out {
		out[i].ExtractedAt = out[i].ExtractedAt.UTC()
	}
	return out, nil
}
