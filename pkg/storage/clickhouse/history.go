package clickhouse

import (
	"context"
	"fmt"
	"time"

	"cryptoetl/internal/market/model"
)

const historyColumns = `coin_id, symbol, name, current_price, market_cap, total_volume,
	price_change_24h, market_cap_rank, volatility_score, extracted_at`

// AppendHistory sends docs as one batch. ClickHouse accepts or rejects the
// whole block, so a failure reports zero rows inserted.
func (s *Store) AppendHistory(ctx context.Context, docs []model.MarketDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO crypto_market_history ("+historyColumns+")")
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, d := range docs {
		err = batch.Append(
			d.CoinID, d.Symbol, d.Name,
			d.CurrentPrice, d.MarketCap, d.TotalVolume, d.PriceChange24h,
			rank32(d.MarketCapRank), d.VolatilityScore, d.ExtractedAt.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("append %s to batch: %w", d.CoinID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return len(docs), nil
}

func (s *Store) HistoryByCoin(ctx context.Context, coinID string, limit int) ([]model.MarketDocument, error) {
	query := "SELECT " + historyColumns + " FROM crypto_market_history WHERE coin_id = ? ORDER BY extracted_at DESC"
	args := []any{coinID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", coinID, err)
	}
	defer rows.Close()

	out := []model.MarketDocument{}
	for rows.Next() {
		var (
			d    model.MarketDocument
			rank *int32
			at   time.Time
		)
		if err := rows.Scan(
			&d.CoinID, &d.Symbol, &d.Name,
			&d.CurrentPrice, &d.MarketCap, &d.TotalVolume, &d.PriceChange24h,
			&rank, &d.VolatilityScore, &at,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if rank != nil {
			r := int(*rank)
			d.MarketCapRank = &r
		}
		d.ExtractedAt = at.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func rank32(r *int) *int32 {
	if r == nil {
		return nil
	}
	v := int32(*r)
	return &v
}
