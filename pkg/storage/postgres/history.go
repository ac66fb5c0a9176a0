package postgres

import (
	"context"
	"fmt"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
)

// AppendHistory inserts each row in its own statement so one bad row does not
// roll back the others.
func (s *Store) AppendHistory(ctx context.Context, docs []model.MarketDocument) (int, error) {
	var failed []storage.RowError
	inserted := 0

	for i := range docs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(docs); j++ {
				failed = append(failed, storage.RowError{Index: j, CoinID: docs[j].CoinID, Err: err})
			}
			break
		}

		rec := toHistoryRecord(&docs[i])
		tx := s.DB.WithContext(ctx).Create(&rec)
		if tx.Error != nil {
			failed = append(failed, storage.RowError{Index: i, CoinID: docs[i].CoinID, Err: classify(tx.Error)})
			continue
		}
		inserted += int(tx.RowsAffected)
	}

	if len(failed) > 0 {
		return inserted, &storage.BulkInsertError{Inserted: inserted, Failed: failed}
	}
	return inserted, nil
}

func (s *Store) HistoryByCoin(ctx context.Context, coinID string, limit int) ([]model.MarketDocument, error) {
	q := s.DB.WithContext(ctx).
		Where("coin_id = ?", coinID).
		Order("extracted_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []HistoryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("history for %s: %w", coinID, err)
	}

	out := make([]model.MarketDocument, len(records))
	for i, r := range records {
		out[i] = r.document()
	}
	return out, nil
}
