package load

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
	"cryptoetl/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func docs(ids ...string) []model.MarketDocument {
	out := make([]model.MarketDocument, len(ids))
	for i, id := range ids {
		out[i] = model.MarketDocument{CoinID: id, Symbol: "X", CurrentPrice: float64(i + 1), ExtractedAt: at}
	}
	return out
}

// flakyStore fails upserts for the listed coins and counts every call.
type flakyStore struct {
	*memory.Store
	failUpsert map[string]bool
	appendErr  error
	appendN    int
	calls      int
}

func (f *flakyStore) UpsertSnapshot(ctx context.Context, doc *model.MarketDocument) (storage.UpsertResult, error) {
	f.calls++
	if f.failUpsert[doc.CoinID] {
		return storage.UpsertResult{}, errors.New("boom")
	}
	return f.Store.UpsertSnapshot(ctx, doc)
}

func (f *flakyStore) AppendHistory(ctx context.Context, d []model.MarketDocument) (int, error) {
	f.calls++
	if f.appendErr != nil {
		return f.appendN, f.appendErr
	}
	return f.Store.AppendHistory(ctx, d)
}

// go test -v --run TestUpsertLatest
func TestUpsertLatest(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := New(store, store, nil)

	sum := l.UpsertLatest(ctx, docs("bitcoin", "ethereum"))
	assert.Equal(t, model.UpsertSummary{Upserted: 2, Total: 2}, sum)

	// second run with identical input changes nothing
	sum = l.UpsertLatest(ctx, docs("bitcoin", "ethereum"))
	assert.Equal(t, model.UpsertSummary{Matched: 2, Total: 2}, sum)

	all, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "re-running never grows the snapshot store")

	changed := docs("bitcoin", "ethereum")
	changed[0].CurrentPrice = 99
	sum = l.UpsertLatest(ctx, changed)
	assert.Equal(t, model.UpsertSummary{Matched: 2, Modified: 1, Total: 2}, sum)
}

func TestUpsertLatestDuplicatesInBatch(t *testing.T) {
	store := memory.New()
	l := New(store, store, nil)

	batch := docs("dup", "dup")
	sum := l.UpsertLatest(context.Background(), batch)
	assert.Equal(t, 1, sum.Upserted)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 2, sum.Total)

	all, _ := store.ListSnapshots(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, batch[1].CurrentPrice, all[0].CurrentPrice, "last write wins")
}

func TestUpsertLatestContinuesAfterFailure(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failUpsert: map[string]bool{"ethereum": true}}
	l := New(store, store, nil)

	sum := l.UpsertLatest(context.Background(), docs("bitcoin", "ethereum", "solana"))

	assert.Equal(t, 3, store.calls, "one failure does not abort the batch")
	assert.Equal(t, model.UpsertSummary{Upserted: 2, Total: 3}, sum)
}

func TestUpsertLatestEmpty(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	l := New(store, store, nil)

	sum := l.UpsertLatest(context.Background(), nil)
	assert.Equal(t, model.UpsertSummary{}, sum)
	assert.Zero(t, store.calls)
}

func TestUpsertLatestCancelled(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	l := New(store, store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := l.UpsertLatest(ctx, docs("a", "b"))
	assert.Equal(t, 2, sum.Total)
	assert.Zero(t, sum.Upserted)
	assert.Zero(t, store.calls)
}

// go test -v --run TestInsertHistory
func TestInsertHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := New(store, store, nil)

	assert.Equal(t, 2, l.InsertHistory(ctx, docs("bitcoin", "ethereum")))
	assert.Equal(t, 2, l.InsertHistory(ctx, docs("bitcoin", "ethereum")))
	assert.Equal(t, 4, store.CountHistory(), "history appends every run")
}

func TestInsertHistoryEmptyDoesNotTouchStore(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	l := New(store, store, nil)

	assert.Zero(t, l.InsertHistory(context.Background(), nil))
	assert.Zero(t, store.calls)
}

func TestInsertHistoryPartialFailure(t *testing.T) {
	store := &flakyStore{
		Store:     memory.New(),
		appendN:   2,
		appendErr: &storage.BulkInsertError{Inserted: 2, Failed: []storage.RowError{{Index: 1, CoinID: "b", Err: errors.New("bad")}}},
	}
	l := New(store, store, nil)

	assert.Equal(t, 2, l.InsertHistory(context.Background(), docs("a", "b", "c")))
}

func TestInsertHistoryTotalFailure(t *testing.T) {
	store := &flakyStore{Store: memory.New(), appendErr: errors.New("connection refused")}
	l := New(store, store, nil)

	assert.Zero(t, l.InsertHistory(context.Background(), docs("a", "b")))
}

func TestInsertHistoryWithoutStore(t *testing.T) {
	store := memory.New()
	l := New(store, nil, nil)

	assert.Zero(t, l.InsertHistory(context.Background(), docs("a")))
	assert.Zero(t, store.CountHistory())
}
