package coingecko

import (
	"fmt"
	"net/http"
)

// Query values for the /coins/markets endpoint.
const (
	OrderMarketCapDesc = "market_cap_desc"
	PriceChange24h     = "24h"
)

// MarketsQuery selects one page of the markets listing.
type MarketsQuery struct {
	VsCurrency string // e.g. "usd"
	PerPage    int
	Page       int
}

// MarketsPage is a decoded markets response plus the exact bytes received.
type MarketsPage struct {
	Raw     []byte           // verbatim response body, kept for the audit archive
	Records []map[string]any // one object per asset; numbers decoded as json.Number
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coingecko: http %d: %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the server answered 429 Too Many Requests.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
