// Package transform maps raw CoinGecko market records onto MarketDocument.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cryptoetl/internal/market/model"

	"go.uber.org/zap"
)

// SkipReason says why a raw record produced no document.
type SkipReason string

const (
	SkipMissingID     SkipReason = "missing_coin_id"
	SkipInvalidNumber SkipReason = "invalid_number"
	SkipInvalidRank   SkipReason = "invalid_rank"
)

// Skip describes a dropped record.
type Skip struct {
	Index  int // position in the input batch
	CoinID string
	Reason SkipReason
	Field  string
	Err    error
}

// Outcome is the per-record result: exactly one of Doc or Skip is set.
type Outcome struct {
	Doc  *model.MarketDocument
	Skip *Skip
}

// Batch is the filtered result of one Transform call.
type Batch struct {
	ExtractedAt time.Time
	Docs        []model.MarketDocument
	Skipped     []Skip
}

// numeric source fields; price_change_percentage_24h is stored as price_change_24h
var numericFields = [...]string{"current_price", "market_cap", "total_volume", "price_change_percentage_24h"}

type Transformer struct {
	now func() time.Time
	log *zap.Logger
}

func New(log *zap.Logger) *Transformer {
	return NewWithClock(log, time.Now)
}

// NewWithClock lets callers pin the batch timestamp.
func NewWithClock(log *zap.Logger, now func() time.Time) *Transformer {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Transformer{now: now, log: log}
}

// Transform never fails as a whole: bad records are skipped and reported.
func (t *Transformer) Transform(raw []model.RawMarketRecord) Batch {
	extractedAt := t.now().UTC()
	t.log.Info("starting transformation", zap.Int("items", len(raw)))

	batch := Batch{ExtractedAt: extractedAt, Docs: make([]model.MarketDocument, 0, len(raw))}
	for i, rec := range raw {
		out := Record(rec, extractedAt)
		if out.Skip != nil {
			out.Skip.Index = i
			t.logSkip(*out.Skip, rec)
			batch.Skipped = append(batch.Skipped, *out.Skip)
			continue
		}
		batch.Docs = append(batch.Docs, *out.Doc)
	}

	t.log.Info("transformation complete",
		zap.Int("docs", len(batch.Docs)),
		zap.Int("skipped", len(batch.Skipped)))
	return batch
}

func (t *Transformer) logSkip(s Skip, rec model.RawMarketRecord) {
	if s.Reason == SkipMissingID {
		t.log.Warn("skipping row with missing coin_id", zap.Int("index", s.Index), zap.Any("row", map[string]any(rec)))
		return
	}
	t.log.Error("error transforming coin",
		zap.String("coin_id", s.CoinID),
		zap.String("reason", string(s.Reason)),
		zap.String("field", s.Field),
		zap.Error(s.Err))
}

// Record converts a single raw record.
func Record(rec model.RawMarketRecord, extractedAt time.Time) Outcome {
	coinID, _ := rec["id"].(string)
	if coinID == "" {
		return Outcome{Skip: &Skip{Reason: SkipMissingID, Field: "id"}}
	}

	var nums [len(numericFields)]float64
	for i, field := range numericFields {
		v, err := toFloat(rec[field])
		if err != nil {
			return Outcome{Skip: &Skip{CoinID: coinID, Reason: SkipInvalidNumber, Field: field, Err: err}}
		}
		nums[i] = v
	}

	var rank *int
	if v, present := rec["market_cap_rank"]; present && v != nil {
		r, err := toInt(v)
		if err != nil {
			return Outcome{Skip: &Skip{CoinID: coinID, Reason: SkipInvalidRank, Field: "market_cap_rank", Err: err}}
		}
		rank = &r
	}

	var name *string
	if s, ok := rec["name"].(string); ok {
		name = &s
	}

	priceChange, volume := nums[3], nums[2]
	doc := &model.MarketDocument{
		CoinID:          coinID,
		Symbol:          strings.ToUpper(toString(rec["symbol"])),
		Name:            name,
		CurrentPrice:    nums[0],
		MarketCap:       nums[1],
		TotalVolume:     volume,
		PriceChange24h:  priceChange,
		MarketCapRank:   rank,
		VolatilityScore: math.Abs(priceChange) * volume,
		ExtractedAt:     extractedAt,
	}
	return Outcome{Doc: doc}
}

// toFloat treats nil and "" as 0 and parses numbers and numeric strings.
func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		f, err = x.Float64()
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

// toInt truncates fractional numbers toward zero. Ranks must fit in int32.
func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return bounded(int64(x))
	case int64:
		return bounded(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return bounded(i)
		}
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return truncate(f)
	case float64:
		return truncate(x)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, err
		}
		return bounded(i)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func truncate(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("rank out of range: %v", f)
	}
	return int(f), nil
}

func bounded(i int64) (int, error) {
	if i > math.MaxInt32 || i < math.MinInt32 {
		return 0, fmt.Errorf("rank out of range: %d", i)
	}
	return int(i), nil
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
