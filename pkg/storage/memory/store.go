// Package memory is an in-process snapshot and history backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
)

// Store keeps snapshots keyed by coin_id and history per coin.
type Store struct {
	snapMu    sync.RWMutex
	snapshots map[string]model.MarketDocument

	globalMu sync.RWMutex
	history  map[string]*coinHistory
}

type coinHistory struct {
	mu   sync.Mutex
	rows []model.MarketDocument
}

var (
	_ storage.SnapshotStore = (*Store)(nil)
	_ storage.HistoryStore  = (*Store)(nil)
	_ storage.Provisioner   = (*Store)(nil)
	_ storage.Pinger        = (*Store)(nil)
)

func New() *Store {
	return &Store{
		snapshots: make(map[string]model.MarketDocument),
		history:   make(map[string]*coinHistory),
	}
}

func (s *Store) UpsertSnapshot(ctx context.Context, doc *model.MarketDocument) (storage.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.UpsertResult{}, err
	}
	if doc == nil || doc.CoinID == "" {
		return storage.UpsertResult{}, storage.ErrInvalidInput
	}

	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	prev, ok := s.snapshots[doc.CoinID]
	s.snapshots[doc.CoinID] = clone(*doc)
	if !ok {
		return storage.UpsertResult{Upserted: true}, nil
	}
	res := storage.UpsertResult{Matched: 1}
	if !sameDocument(prev, *doc) {
		res.Modified = 1
	}
	return res, nil
}

func (s *Store) ListSnapshots(ctx context.Context) ([]model.MarketDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.snapMu.RLock()
	out := make([]model.MarketDocument, 0, len(s.snapshots))
	for _, doc := range s.snapshots {
		out = append(out, clone(doc))
	}
	s.snapMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].MarketCapRank, out[j].MarketCapRank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return out[i].CoinID < out[j].CoinID
	})
	return out, nil
}

// AppendHistory never conflicts; rows without a coin_id are reported as failed.
func (s *Store) AppendHistory(ctx context.Context, docs []model.MarketDocument) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var failed []storage.RowError
	inserted := 0
	for i, doc := range docs {
		if doc.CoinID == "" {
			failed = append(failed, storage.RowError{Index: i, Err: storage.ErrInvalidInput})
			continue
		}
		h := s.coin(doc.CoinID)
		h.mu.Lock()
		h.rows = append(h.rows, clone(doc))
		h.mu.Unlock()
		inserted++
	}

	if len(failed) > 0 {
		return inserted, &storage.BulkInsertError{Inserted: inserted, Failed: failed}
	}
	return inserted, nil
}

// HistoryByCoin returns newest rows first; limit <= 0 returns everything.
func (s *Store) HistoryByCoin(ctx context.Context, coinID string, limit int) ([]model.MarketDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.globalMu.RLock()
	h, ok := s.history[coinID]
	s.globalMu.RUnlock()
	if !ok {
		return []model.MarketDocument{}, nil
	}

	h.mu.Lock()
	out := make([]model.MarketDocument, len(h.rows))
	for i, doc := range h.rows {
		out[i] = clone(doc)
	}
	h.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExtractedAt.After(out[j].ExtractedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountHistory returns the number of history rows across all coins.
func (s *Store) CountHistory() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, h := range s.history {
		h.mu.Lock()
		total += len(h.rows)
		h.mu.Unlock()
	}
	return total
}

func (s *Store) EnsureSchema(context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) coin(coinID string) *coinHistory {
	s.globalMu.RLock()
	h, ok := s.history[coinID]
	s.globalMu.RUnlock()
	if ok {
		return h
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if h, ok = s.history[coinID]; !ok {
		h = &coinHistory{}
		s.history[coinID] = h
	}
	return h
}

// clone copies the pointer fields so callers cannot mutate stored rows.
func clone(doc model.MarketDocument) model.MarketDocument {
	if doc.Name != nil {
		name := *doc.Name
		doc.Name = &name
	}
	if doc.MarketCapRank != nil {
		rank := *doc.MarketCapRank
		doc.MarketCapRank = &rank
	}
	return doc
}

func sameDocument(a, b model.MarketDocument) bool {
	if !equalPtr(a.Name, b.Name) || !equalPtr(a.MarketCapRank, b.MarketCapRank) {
		return false
	}
	if !a.ExtractedAt.Equal(b.ExtractedAt) {
		return false
	}
	a.Name, b.Name = nil, nil
	a.MarketCapRank, b.MarketCapRank = nil, nil
	a.ExtractedAt, b.ExtractedAt = time.Time{}, time.Time{}
	return a == b
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
