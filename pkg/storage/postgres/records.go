package postgres

import (
	"time"

	"cryptoetl/internal/market/model"
	"cryptoetl/pkg/storage"
)

// SnapshotRecord is the latest state of one asset.
type SnapshotRecord struct {
	ID uint `gorm:"primaryKey"`

	CoinID string  `gorm:"type:text;not null;uniqueIndex:idx_crypto_market_coin_id"`
	Symbol string  `gorm:"type:text;not null"`
	Name   *string `gorm:"type:text"`

	CurrentPrice   float64 `gorm:"type:double precision;not null"`
	MarketCap      float64 `gorm:"type:double precision;not null"`
	TotalVolume    float64 `gorm:"type:double precision;not null"`
	PriceChange24h float64 `gorm:"column:price_change_24h;type:double precision;not null"`
	MarketCapRank  *int    `gorm:"index:idx_crypto_market_rank"`

	VolatilityScore float64   `gorm:"type:double precision;not null"`
	ExtractedAt     time.Time `gorm:"type:timestamptz;not null"`
}

func (SnapshotRecord) TableName() string {
	return storage.SnapshotCollection
}

// HistoryRecord is one immutable time-series row. No uniqueness constraint.
type HistoryRecord struct {
	ID uint64 `gorm:"primaryKey"`

	CoinID string  `gorm:"type:text;not null;index:idx_history_coin_extracted,priority:1"`
	Symbol string  `gorm:"type:text;not null"`
	Name   *string `gorm:"type:text"`

	CurrentPrice   float64 `gorm:"type:double precision;not null"`
	MarketCap      float64 `gorm:"type:double precision;not null"`
	TotalVolume    float64 `gorm:"type:double precision;not null"`
	PriceChange24h float64 `gorm:"column:price_change_24h;type:double precision;not null"`
	MarketCapRank  *int

	VolatilityScore float64   `gorm:"type:double precision;not null"`
	ExtractedAt     time.Time `gorm:"type:timestamptz;not null;index:idx_history_extracted_at,sort:desc;index:idx_history_coin_extracted,priority:2,sort:desc"`
}

func (HistoryRecord) TableName() string {
	return storage.HistoryCollection
}

func toHistoryRecord(d *model.MarketDocument) HistoryRecord {
	return HistoryRecord{
		CoinID:          d.CoinID,
		Symbol:          d.Symbol,
		Name:            d.Name,
		CurrentPrice:    d.CurrentPrice,
		MarketCap:       d.MarketCap,
		TotalVolume:     d.TotalVolume,
		PriceChange24h:  d.PriceChange24h,
		MarketCapRank:   d.MarketCapRank,
		VolatilityScore: d.VolatilityScore,
		ExtractedAt:     d.ExtractedAt.UTC(),
	}
}

func (r SnapshotRecord) document() model.MarketDocument {
	return model.MarketDocument{
		CoinID:          r.CoinID,
		Symbol:          r.Symbol,
		Name:            r.Name,
		CurrentPrice:    r.CurrentPrice,
		MarketCap:       r.MarketCap,
		TotalVolume:     r.TotalVolume,
		PriceChange24h:  r.PriceChange24h,
		MarketCapRank:   r.MarketCapRank,
		VolatilityScore: r.VolatilityScore,
		ExtractedAt:     r.ExtractedAt.UTC(),
	}
}

func (r HistoryRecord) document() model.MarketDocument {
	return model.MarketDocument{
		CoinID:          r.CoinID,
		Symbol:          r.Symbol,
		Name:            r.Name,
		CurrentPrice:    r.CurrentPrice,
		MarketCap:       r.MarketCap,
		TotalVolume:     r.TotalVolume,
		PriceChange24h:  r.PriceChange24h,
		MarketCapRank:   r.MarketCapRank,
		VolatilityScore: r.VolatilityScore,
		ExtractedAt:     r.ExtractedAt.UTC(),
	}
}
