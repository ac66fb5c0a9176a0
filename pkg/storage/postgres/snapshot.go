package postgres

import (
	"context"
	"fmt"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
)

// The WHERE clause skips no-op updates, so an unchanged row returns nothing
// and counts as matched only. xmax = 0 marks a freshly inserted row.
const upsertSnapshotSQL = `
INSERT INTO crypto_market (
	coin_id, symbol, name, current_price, market_cap, total_volume,
	price_change_24h, market_cap_rank, volatility_score, extracted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (coin_id) DO UPDATE SET
	symbol = EXCLUDED.symbol,
	name = EXCLUDED.name,
	current_price = EXCLUDED.current_price,
	market_cap = EXCLUDED.market_cap,
	total_volume = EXCLUDED.total_volume,
	price_change_24h = EXCLUDED.price_change_24h,
	market_cap_rank = EXCLUDED.market_cap_rank,
	volatility_score = EXCLUDED.volatility_score,
	extracted_at = EXCLUDED.extracted_at
WHERE (
	crypto_market.symbol, crypto_market.name, crypto_market.current_price,
	crypto_market.market_cap, crypto_market.total_volume, crypto_market.price_change_24h,
	crypto_market.market_cap_rank, crypto_market.volatility_score, crypto_market.extracted_at
) IS DISTINCT FROM (
	EXCLUDED.symbol, EXCLUDED.name, EXCLUDED.current_price,
	EXCLUDED.market_cap, EXCLUDED.total_volume, EXCLUDED.price_change_24h,
	EXCLUDED.market_cap_rank, EXCLUDED.volatility_score, EXCLUDED.extracted_at
)
RETURNING (xmax = 0) AS inserted`

type upsertRow struct {
	Inserted bool
}

func (s *Store) UpsertSnapshot(ctx context.Context, doc *model.MarketDocument) (storage.UpsertResult, error) {
	if doc == nil || doc.CoinID == "" {
		return storage.UpsertResult{}, storage.ErrInvalidInput
	}

	var rows []upsertRow
	tx := s.DB.WithContext(ctx).Raw(upsertSnapshotSQL,
		doc.CoinID, doc.Symbol, doc.Name, doc.CurrentPrice, doc.MarketCap, doc.TotalVolume,
		doc.PriceChange24h, doc.MarketCapRank, doc.VolatilityScore, doc.ExtractedAt.UTC(),
	).Scan(&rows)
	if tx.Error != nil {
		return storage.UpsertResult{}, fmt.Errorf("upsert %s: %w", doc.CoinID, classify(tx.Error))
	}

	switch {
	case len(rows) == 0:
		return storage.UpsertResult{Matched: 1}, nil
	case rows[0].Inserted:
		return storage.UpsertResult{Upserted: true}, nil
	default:
		return storage.UpsertResult{Matched: 1, Modified: 1}, nil
	}
}

func (s *Store) ListSnapshots(ctx context.Context) ([]model.MarketDocument, error) {
	var records []SnapshotRecord
	err := s.DB.WithContext(ctx).
		Order("market_cap_rank ASC NULLS LAST").
		Order("coin_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]model.MarketDocument, len(records))
	for i, r := range records {
		out[i] = r.document()
	}
	return out, nil
}
