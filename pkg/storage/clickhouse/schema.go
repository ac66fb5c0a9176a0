package clickhouse

import (
	"context"
	"fmt"
)

// No uniqueness: the sorting key only serves per-coin time range reads.
const createHistoryTable = `
CREATE TABLE IF NOT EXISTS crypto_market_history (
	coin_id          String,
	symbol           String,
	name             Nullable(String),
	current_price    Float64,
	market_cap       Float64,
	total_volume     Float64,
	price_change_24h Float64,
	market_cap_rank  Nullable(Int32),
	volatility_score Float64,
	extracted_at     DateTime64(3, 'UTC')
) ENGINE = MergeTree()
ORDER BY (coin_id, extracted_at)`

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}
