// Package paper simulates order execution against live market data. Public
// calls pass through to the wrapped client; orders fill instantly at the
// limit rate against virtual balances.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bbot/internal/domain"
	"bbot/internal/exchange"
)

// Exchange is a simulated exchange.Client.
type Exchange struct {
	inner   exchange.Client
	feeRate decimal.Decimal

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	orders   map[string]exchange.OrderStatus
}

var _ exchange.Client = (*Exchange)(nil)

// New wraps a real client for market data and seeds the virtual account
// with a starting balance in the given currency.
func New(inner exchange.Client, feeRate float64, currency string, balance decimal.Decimal) *Exchange {
	return &Exchange{
		inner:    inner,
		feeRate:  decimal.NewFromFloat(feeRate),
		balances: map[string]decimal.Decimal{currency: balance},
		orders:   make(map[string]exchange.OrderStatus),
	}
}

func (e *Exchange) GetTicker(ctx context.Context, market string) (*domain.Ticker, error) {
	return e.inner.GetTicker(ctx, market)
}

func (e *Exchange) GetTicks(ctx context.Context, market, interval string, count int) ([]domain.Tick, error) {
	return e.inner.GetTicks(ctx, market, interval, count)
}

func (e *Exchange) GetMarketSummaries(ctx context.Context) ([]domain.MarketSummary, error) {
	return e.inner.GetMarketSummaries(ctx)
}

// BuyLimit debits quote cost plus fee and credits the market currency.
func (e *Exchange) BuyLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error) {
	quote, base, err := splitMarket(market)
	if err != nil {
		return "", err
	}

	cost := qty.Mul(rate)
	fee := cost.Mul(e.feeRate)

	e.mu.Lock()
	defer e.mu.Unlock()

	avail := e.balances[quote]
	if avail.LessThan(cost.Add(fee)) {
		return "", fmt.Errorf("paper: insufficient %s balance: have %s, need %s", quote, avail, cost.Add(fee))
	}
	e.balances[quote] = avail.Sub(cost).Sub(fee)
	e.balances[base] = e.balances[base].Add(qty)

	return e.record(qty, fee, cost, rate), nil
}

// SellLimit debits the market currency and credits quote proceeds net of fee.
func (e *Exchange) SellLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error) {
	quote, base, err := splitMarket(market)
	if err != nil {
		return "", err
	}

	proceeds := qty.Mul(rate)
	fee := proceeds.Mul(e.feeRate)

	e.mu.Lock()
	defer e.mu.Unlock()

	avail := e.balances[base]
	if avail.LessThan(qty) {
		return "", fmt.Errorf("paper: insufficient %s balance: have %s, need %s", base, avail, qty)
	}
	e.balances[base] = avail.Sub(qty)
	e.balances[quote] = e.balances[quote].Add(proceeds).Sub(fee)

	return e.record(qty, fee, proceeds, rate), nil
}

// record stores a fully filled order and returns its id. Caller holds mu.
func (e *Exchange) record(qty, fee, total, rate decimal.Decimal) string {
	id := uuid.NewString()
	e.orders[id] = exchange.OrderStatus{
		ID:                id,
		IsOpen:            false,
		Quantity:          qty,
		QuantityRemaining: decimal.Zero,
		Commission:        fee,
		Price:             total,
		PricePerUnit:      rate,
	}
	return id
}

// CancelOrder is a no-op for known orders; paper fills are immediate so
// there is never an open order to cancel.
func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.orders[orderID]; !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	return nil
}

func (e *Exchange) GetOrder(ctx context.Context, orderID string) (*exchange.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("paper: unknown order %s", orderID)
	}
	return &status, nil
}

func (e *Exchange) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[currency], nil
}

// splitMarket breaks "BTC-LTC" into quote and base currencies.
func splitMarket(market string) (quote, base string, err error) {
	parts := strings.SplitN(market, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("paper: malformed market name %q", market)
	}
	return parts[0], parts[1], nil
}
