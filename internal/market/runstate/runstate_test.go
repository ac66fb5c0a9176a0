package runstate

import (
	"context"
	"os"
	"testing"
	"time"

	"cryptoetl/internal/market/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summary(id string) model.RunSummary {
	d := 1.5
	return model.RunSummary{
		RunID:           id,
		Fetched:         20,
		Transformed:     19,
		Skipped:         1,
		Upsert:          model.UpsertSummary{Matched: 19, Modified: 19, Total: 19},
		HistoryInserted: 19,
		ExtractAttempts: 1,
		RanAt:           time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Status:          model.StatusSuccess,
		DurationSeconds: &d,
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	var m Memory

	last, err := m.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	m.ObserveRun(ctx, summary("a"))
	m.ObserveRun(ctx, summary("b"))

	last, err = m.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.RunID)
}

// go test -v --run TestRedisStore (needs REDIS_ADDR)
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	r, err := NewRedisStore(ctx, addr, "", 0, time.Minute, nil)
	require.NoError(t, err)
	defer r.Close()
	r.key = "cryptoetl:test:" + t.Name()
	t.Cleanup(func() { r.client.Del(ctx, r.key) })

	last, err := r.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	want := summary("redis-run")
	r.ObserveRun(ctx, want)

	last, err = r.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, want.RunID, last.RunID)
	assert.Equal(t, want.Upsert, last.Upsert)
	assert.True(t, want.RanAt.Equal(last.RanAt))
	assert.Equal(t, *want.DurationSeconds, *last.DurationSeconds)
}

func TestRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, "127.0.0.1:1", "", 0, 0, nil)
	require.Error(t, err)
}
