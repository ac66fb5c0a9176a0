// Package load persists transformed documents into the snapshot and history stores.
package load

import (
	"context"
	"errors"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"

	"go.uber.org/zap"
)

type Loader struct {
	snapshots storage.SnapshotUpserter
	history   storage.HistoryAppender // nil disables history writes
	log       *zap.Logger
}

func New(snapshots storage.SnapshotUpserter, history storage.HistoryAppender, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{snapshots: snapshots, history: history, log: log}
}

// UpsertLatest writes each document keyed by coin_id. A failed document is
// logged and left out of the tallies; Total is always len(docs).
func (l *Loader) UpsertLatest(ctx context.Context, docs []model.MarketDocument) model.UpsertSummary {
	summary := model.UpsertSummary{Total: len(docs)}
	if len(docs) == 0 {
		l.log.Warn("no documents to upsert")
		return summary
	}

	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			l.log.Error("upsert interrupted",
				zap.Int("remaining", len(docs)-i),
				zap.Error(err))
			break
		}

		res, err := l.snapshots.UpsertSnapshot(ctx, doc)
		if err != nil {
			l.log.Error("error upserting coin", zap.String("coin_id", doc.CoinID), zap.Error(err))
			continue
		}
		summary.Matched += res.Matched
		summary.Modified += res.Modified
		if res.Upserted {
			summary.Upserted++
		}
	}

	l.log.Info("upsert complete",
		zap.Int("matched", summary.Matched),
		zap.Int("modified", summary.Modified),
		zap.Int("upserted", summary.Upserted),
		zap.Int("total", summary.Total))
	return summary
}

// InsertHistory appends docs as new rows and returns how many the store
// confirmed. Failures never propagate.
func (l *Loader) InsertHistory(ctx context.Context, docs []model.MarketDocument) int {
	if len(docs) == 0 {
		l.log.Warn("no documents to insert into history")
		return 0
	}
	if l.history == nil {
		l.log.Warn("history store not configured; skipping history insert", zap.Int("docs", len(docs)))
		return 0
	}

	n, err := l.history.AppendHistory(ctx, docs)
	if err == nil {
		l.log.Info("inserted history records", zap.Int("inserted", n))
		return n
	}

	var bulk *storage.BulkInsertError
	if errors.As(err, &bulk) {
		l.log.Error("partial error inserting history",
			zap.Int("inserted", bulk.Inserted),
			zap.Int("failed", len(bulk.Failed)),
			zap.Error(err))
		return bulk.Inserted
	}

	l.log.Error("error inserting history", zap.Int("docs", len(docs)), zap.Error(err))
	return 0
}
