package domain

import "github.com/shopspring/decimal"

// Side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderState is the persisted lifecycle state of an order.
// Transitions are one-directional: pending -> open -> completed|cancelled.
type OrderState string

const (
	OrderPending   OrderState = "pending"
	OrderOpen      OrderState = "open"
	OrderCompleted OrderState = "completed"
	OrderCancelled OrderState = "cancelled"
)

// Resolved reports whether the state is terminal.
func (s OrderState) Resolved() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Trade is one order placed by a worker.
// Quantity is the requested amount; RealQty is what actually filled after
// fees. Amount is the quote paid for a buy, or the cost basis carried on the
// matching sell so realized gain survives a restart.
type Trade struct {
	ID       string // exchange order id
	Market   string
	Side     Side
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	RealQty  decimal.Decimal
	Fee      decimal.Decimal
	Amount   decimal.Decimal
	State    OrderState
}

// Resolved reports whether the trade reached a terminal state.
func (t *Trade) Resolved() bool {
	return t.State.Resolved()
}
