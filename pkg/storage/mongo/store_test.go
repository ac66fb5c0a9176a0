package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cryptoetl/config"
	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
	"cryptoetl/pkg/storage/mongo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStore connects to MONGO_URI using a throwaway database.
func openStore(t *testing.T) *mongo.Store {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" || testing.Short() {
		t.Skip("MONGO_URI not set")
	}

	ctx := context.Background()
	cfg := config.MongoConfig{URI: uri, Database: fmt.Sprintf("cryptoetl_test_%d", time.Now().UnixNano())}
	store, err := mongo.Open(ctx, cfg, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Drop(ctx)
		_ = store.Close(ctx)
	})

	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestOpenRequiresURI(t *testing.T) {
	_, err := mongo.Open(context.Background(), config.MongoConfig{}, time.Second)
	require.Error(t, err)
}

// go test -v --run TestMongoSnapshotUpsert
func TestMongoSnapshotUpsert(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rank := 1

	btc := model.MarketDocument{CoinID: "bitcoin", Symbol: "BTC", CurrentPrice: 1, MarketCapRank: &rank, ExtractedAt: at}
	res, err := store.UpsertSnapshot(ctx, &btc)
	require.NoError(t, err)
	assert.True(t, res.Upserted)

	res, err = store.UpsertSnapshot(ctx, &btc)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertResult{Matched: 1}, res)

	btc.CurrentPrice = 2
	res, err = store.UpsertSnapshot(ctx, &btc)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertResult{Matched: 1, Modified: 1}, res)

	_, err = store.UpsertSnapshot(ctx, &model.MarketDocument{CoinID: "unranked", ExtractedAt: at})
	require.NoError(t, err)

	all, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bitcoin", all[0].CoinID)
	assert.Equal(t, 2.0, all[0].CurrentPrice)
	assert.Equal(t, "unranked", all[1].CoinID)
}

// go test -v --run TestMongoHistory
func TestMongoHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	n, err := store.AppendHistory(ctx, []model.MarketDocument{
		{CoinID: "bitcoin", ExtractedAt: at},
		{CoinID: "bitcoin", ExtractedAt: at.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := store.HistoryByCoin(ctx, "bitcoin", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, at.Add(time.Hour).Equal(rows[0].ExtractedAt))
}
