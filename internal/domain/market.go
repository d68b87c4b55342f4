package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Indicators is the per-market indicator snapshot published by the market's
// worker once per minute and read by the observer surface.
type Indicators struct {
	WilderRSI  float64         `json:"wilder_rsi"`
	ClassicRSI float64         `json:"classic_rsi"`
	HourlyRSI  float64         `json:"hourly_rsi"`
	EMA14      float64         `json:"ema14"`
	EMA28      float64         `json:"ema28"`
	MACD       float64         `json:"macd"`
	LastPrice  decimal.Decimal `json:"last_price"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Market is one tradable pair. The indicator snapshot is mutated only by the
// market's own worker; Rank is mutated through the rank tracker. A market is
// never deleted while its worker runs.
type Market struct {
	Name           string // pair name, e.g. "BTC-LTC"
	BaseCurrency   string // quote side of the pair ("BTC" in "BTC-LTC")
	MarketCurrency string // traded asset ("LTC" in "BTC-LTC")
	MinTradeSize   decimal.Decimal
	BaseVolume     float64 // 24h volume in base currency, used for ranking
	Rank           int
	LastTickCount  int

	mu  sync.Mutex
	ind Indicators
}

// PublishIndicators replaces the indicator snapshot.
func (m *Market) PublishIndicators(ind Indicators) {
	m.mu.Lock()
	m.ind = ind
	m.mu.Unlock()
}

// PublishLastPrice updates only the last-price field of the snapshot.
// Used by the fast poll loop between full indicator recomputations.
func (m *Market) PublishLastPrice(last decimal.Decimal, at time.Time) {
	m.mu.Lock()
	m.ind.LastPrice = last
	m.ind.UpdatedAt = at
	m.mu.Unlock()
}

// Snapshot returns a copy of the current indicator snapshot.
func (m *Market) Snapshot() Indicators {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ind
}
