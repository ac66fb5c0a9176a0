package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSaveVerbatim(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data_raw")
	sink := NewDir(dir)
	ts := time.Date(2026, 10, 19, 8, 30, 5, 0, time.UTC)
	payload := []byte(`[{"id":"bitcoin", "symbol":"btc"}]`)

	path, err := sink.Save(ts, payload)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "markets_20261019_083005.json"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDirSaveSameSecond(t *testing.T) {
	sink := NewDir(t.TempDir())
	ts := time.Date(2026, 10, 19, 8, 30, 5, 0, time.UTC)

	first, err := sink.Save(ts, []byte(`[1]`))
	require.NoError(t, err)
	second, err := sink.Save(ts, []byte(`[2]`))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "markets_20261019_083005_1.json", filepath.Base(second))
}

func TestDirSaveUnwritable(t *testing.T) {
	// a regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewDir(blocker).Save(time.Now(), []byte(`[]`))
	assert.Error(t, err)
}
