// Package storage defines the persistence contracts used by the loader.
//
// The snapshot and history write paths are separate interfaces: a snapshot
// upsert is atomic per document and conflicts on coin_id, while a history
// append is best effort, unordered and never conflicts.
package storage

import (
	"context"

	"cryptoetl/internal/market/model"
)

// Collection / table names shared by every backend.
const (
	SnapshotCollection = "crypto_market"
	HistoryCollection  = "crypto_market_history"
)

// UpsertResult reports what a single upsert did.
type UpsertResult struct {
	Matched  int  // an existing row had this coin_id
	Modified int  // the existing row changed
	Upserted bool // a new row was inserted
}

// SnapshotUpserter writes the latest state of one asset, keyed by coin_id.
type SnapshotUpserter interface {
	// UpsertSnapshot overwrites the row for doc.CoinID or inserts it.
	UpsertSnapshot(ctx context.Context, doc *model.MarketDocument) (UpsertResult, error)
}

// HistoryAppender appends immutable time-series rows.
type HistoryAppender interface {
	// AppendHistory inserts docs in unordered mode and returns how many rows the
	// backend confirmed. A partial failure returns a *BulkInsertError whose
	// Inserted field equals the returned count.
	AppendHistory(ctx context.Context, docs []model.MarketDocument) (int, error)
}

// SnapshotReader is the dashboard-facing read side of the snapshot store.
type SnapshotReader interface {
	// ListSnapshots returns all rows ordered by market_cap_rank (unranked last).
	ListSnapshots(ctx context.Context) ([]model.MarketDocument, error)
}

// HistoryReader queries the time series of one asset.
type HistoryReader interface {
	// HistoryByCoin returns up to limit rows for coinID, newest extracted_at first.
	HistoryByCoin(ctx context.Context, coinID string, limit int) ([]model.MarketDocument, error)
}

// SnapshotStore is a full snapshot backend.
type SnapshotStore interface {
	SnapshotUpserter
	SnapshotReader
}

// HistoryStore is a full history backend.
type HistoryStore interface {
	HistoryAppender
	HistoryReader
}

// Provisioner creates the tables/collections and indexes a backend relies on.
// The loader never calls it; provisioning is a separate step (init-db).
type Provisioner interface {
	EnsureSchema(ctx context.Context) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
