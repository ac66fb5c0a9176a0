package model

import "time"

// RawMarketRecord is one asset object as decoded from the CoinGecko markets array.
// Numbers are kept as json.Number so coercion can decide how to read them.
type RawMarketRecord map[string]any

// MarketDocument is the canonical per-asset record persisted by a run.
type MarketDocument struct {
	CoinID          string    `json:"coin_id" bson:"coin_id"`
	Symbol          string    `json:"symbol" bson:"symbol"`
	Name            *string   `json:"name" bson:"name"`
	CurrentPrice    float64   `json:"current_price" bson:"current_price"`
	MarketCap       float64   `json:"market_cap" bson:"market_cap"`
	TotalVolume     float64   `json:"total_volume" bson:"total_volume"`
	PriceChange24h  float64   `json:"price_change_24h" bson:"price_change_24h"`
	MarketCapRank   *int      `json:"market_cap_rank" bson:"market_cap_rank"`
	VolatilityScore float64   `json:"volatility_score" bson:"volatility_score"`
	ExtractedAt     time.Time `json:"extracted_at" bson:"extracted_at"` // batch timestamp, UTC
}

// UpsertSummary tallies one snapshot upsert pass.
type UpsertSummary struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
	Upserted int `json:"upserted"`
	Total    int `json:"total"`
}

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed" // no data to load
	StatusError   RunStatus = "error"  // something broke mid-run
)

// RunSummary is what a caller of the pipeline gets back, always.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Fetched         int           `json:"fetched"`
	Transformed     int           `json:"transformed"`
	Skipped         int           `json:"skipped"`
	Upsert          UpsertSummary `json:"upsert"`
	HistoryInserted int           `json:"history_inserted"`
	ExtractAttempts int           `json:"extract_attempts"`
	RanAt           time.Time     `json:"ran_at"`
	Status          RunStatus     `json:"status"`
	DurationSeconds *float64      `json:"duration_seconds,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
}
