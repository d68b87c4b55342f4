// Package exchange defines the wire-client contract the trading core uses.
// Implementations own URL building, request signing and JSON decoding; the
// core only sees decoded domain values and errors.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bbot/internal/domain"
)

// ErrUnavailable marks a transient failure (network error, empty result,
// exchange-side rejection). Callers retry with backoff.
var ErrUnavailable = errors.New("exchange unavailable")

// Tick intervals accepted by GetTicks.
const (
	IntervalOneMin    = "oneMin"
	IntervalFiveMin   = "fiveMin"
	IntervalThirtyMin = "thirtyMin"
	IntervalHour      = "hour"
)

// OrderStatus is the exchange's report on a placed order.
type OrderStatus struct {
	ID                string
	IsOpen            bool
	Quantity          decimal.Decimal
	QuantityRemaining decimal.Decimal
	Commission        decimal.Decimal
	Price             decimal.Decimal // total quote amount traded so far
	PricePerUnit      decimal.Decimal
}

// FilledQuantity returns how much of the order has executed.
func (s *OrderStatus) FilledQuantity() decimal.Decimal {
	return s.Quantity.Sub(s.QuantityRemaining)
}

// Client is the full exchange surface the bot depends on.
type Client interface {
	// GetTicker returns the current top of book for a market.
	GetTicker(ctx context.Context, market string) (*domain.Ticker, error)

	// GetTicks returns up to count OHLCV samples at the given interval,
	// ordered oldest to newest.
	GetTicks(ctx context.Context, market, interval string, count int) ([]domain.Tick, error)

	// BuyLimit places a limit buy and returns the exchange order id.
	BuyLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error)

	// SellLimit places a limit sell and returns the exchange order id.
	SellLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrder reports fill state for an order.
	GetOrder(ctx context.Context, orderID string) (*OrderStatus, error)

	// GetBalance returns the available balance for a currency.
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)

	// GetMarketSummaries returns the 24h rollup for every market,
	// sorted descending by base volume.
	GetMarketSummaries(ctx context.Context) ([]domain.MarketSummary, error)
}
