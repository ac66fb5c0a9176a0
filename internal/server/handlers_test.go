package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptoetl/internal/market/model"
	"cryptoetl/internal/market/runstate"
	"cryptoetl/internal/observability"
	"cryptoetl/pkg/storage"
	"cryptoetl/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls       int
	saveHistory bool
	cancelled   bool
}

func (f *fakeRunner) Run(ctx context.Context, saveHistory bool) model.RunSummary {
	f.calls++
	f.saveHistory = saveHistory
	f.cancelled = ctx.Err() != nil
	return model.RunSummary{RunID: "r1", Status: model.StatusSuccess}
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rank := 1

	_, err := s.UpsertSnapshot(ctx, &model.MarketDocument{CoinID: "bitcoin", Symbol: "BTC", MarketCapRank: &rank, ExtractedAt: at})
	require.NoError(t, err)
	_, err = s.AppendHistory(ctx, []model.MarketDocument{
		{CoinID: "bitcoin", CurrentPrice: 1, ExtractedAt: at},
		{CoinID: "bitcoin", CurrentPrice: 2, ExtractedAt: at.Add(time.Minute)},
		{CoinID: "bitcoin", CurrentPrice: 3, ExtractedAt: at.Add(2 * time.Minute)},
	})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

// go test -v --run TestTriggerRun
func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandler(Deps{Runner: runner, Snapshots: memory.New()})

	rec := do(t, h, http.MethodPost, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.saveHistory, "save_history defaults to true")
	assert.False(t, runner.cancelled)

	var s model.RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, "r1", s.RunID)

	rec = do(t, h, http.MethodPost, "/runs", `{"save_history":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, runner.saveHistory)

	rec = do(t, h, http.MethodPost, "/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, runner.calls)

	rec = do(t, h, http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLastRun(t *testing.T) {
	last := &runstate.Memory{}
	h := NewHandler(Deps{LastRun: last, Snapshots: memory.New()})

	rec := do(t, h, http.MethodGet, "/runs/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	last.ObserveRun(context.Background(), model.RunSummary{RunID: "abc", Status: model.StatusFailed})
	rec = do(t, h, http.MethodGet, "/runs/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"abc"`)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	assert.NotContains(t, rec.Body.String(), "duration_seconds")
}

func TestLatestAndHistory(t *testing.T) {
	store := seeded(t)
	h := NewHandler(Deps{Snapshots: store, History: store})

	rec := do(t, h, http.MethodGet, "/markets/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest []model.MarketDocument
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&latest))
	require.Len(t, latest, 1)
	assert.Equal(t, "BTC", latest[0].Symbol)

	rec = do(t, h, http.MethodGet, "/markets/bitcoin/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []model.MarketDocument
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 3.0, rows[0].CurrentPrice)

	rec = do(t, h, http.MethodGet, "/markets/bitcoin/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/markets/dogecoin/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryDisabled(t *testing.T) {
	h := NewHandler(Deps{Snapshots: memory.New()})

	rec := do(t, h, http.MethodGet, "/markets/bitcoin/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	h := NewHandler(Deps{Snapshots: memory.New(), Checks: map[string]storage.Pinger{"snapshot": up}})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","checks":{"snapshot":"healthy"}}`, rec.Body.String())

	h = NewHandler(Deps{Snapshots: memory.New(), Checks: map[string]storage.Pinger{"snapshot": up, "redis": down}})
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"snapshot":"healthy","redis":"unhealthy"}}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveRun(context.Background(), model.RunSummary{Status: model.StatusSuccess})
	h := NewHandler(Deps{Snapshots: memory.New(), Metrics: m.Handler()})

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cryptoetl_pipeline_runs_total")
}
