package coingecko

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/require"
)

// Replays a real /coins/markets call from a go-vcr cassette.
// Skips when the cassette is absent unless RECORD_CASSETTES=1.
func TestGetMarketsRecorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "coins_markets")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s.yaml", cassette)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassette), 0o755))
	}

	r, err := recorder.New(cassette)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	client := NewRESTClient("", 10*time.Second, WithHTTPClient(&http.Client{Transport: r, Timeout: 10 * time.Second}))

	page, err := client.GetMarkets(context.Background(), MarketsQuery{VsCurrency: "usd", PerPage: 5, Page: 1})
	require.NoError(t, err)
	require.NotEmpty(t, page.Records)
	require.NotEmpty(t, page.Records[0]["id"])
}
