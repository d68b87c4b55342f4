package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one OHLCV sample for a market at a fixed interval.
// Ticks are immutable once decoded; series are ordered oldest to newest.
type Tick struct {
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	BaseVolume float64
	Timestamp  time.Time
}

// Ticker is the current top-of-book view of a market.
type Ticker struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
}

// MarketSummary is the 24h rollup the exchange publishes per market.
type MarketSummary struct {
	MarketName string
	Last       decimal.Decimal
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	High       float64
	Low        float64
	Volume     float64
	BaseVolume float64
	PrevDay    float64
	Timestamp  time.Time
}

// Closes extracts the close series from a tick window, preserving order.
func Closes(ticks []Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Close
	}
	return out
}
