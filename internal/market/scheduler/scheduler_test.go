package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cryptoetl/internal/market/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestTickerRunsImmediatelyAndRepeats
func TestTickerRunsImmediatelyAndRepeats(t *testing.T) {
	var runs atomic.Int32
	var sawHistory atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())

	tk := &Ticker{
		Interval:    10 * time.Millisecond,
		SaveHistory: true,
		Run: func(_ context.Context, saveHistory bool) model.RunSummary {
			sawHistory.Store(saveHistory)
			runs.Add(1)
			return model.RunSummary{Status: model.StatusSuccess}
		},
	}
	done := tk.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, sawHistory.Load())
}

func TestTickerStopsBeforeAlignedRun(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	tk := &Ticker{
		Interval: time.Hour,
		Align:    true,
		Run: func(context.Context, bool) model.RunSummary {
			runs.Add(1)
			return model.RunSummary{}
		},
	}
	done := tk.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(1), runs.Load())
}
