// Package storage persists the order ledger in SQLite. The ledger is the
// source of truth for crash recovery: on restart each worker asks for its
// unresolved orders and resumes from whatever state the exchange reports.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/glebarez/go-sqlite"

	"bbot/internal/domain"
)

// ErrStaleTransition is returned when an update targets an order that is
// already resolved. States only move forward: pending -> open ->
// completed|cancelled.
var ErrStaleTransition = fmt.Errorf("order already resolved")

// OrderStore is the SQLite-backed order ledger.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore opens (or creates) the ledger at dbPath with WAL mode.
func NewOrderStore(dbPath string) (*OrderStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id   TEXT PRIMARY KEY,
			market     TEXT NOT NULL,
			side       TEXT NOT NULL CHECK (side IN ('buy','sell')),
			quantity   TEXT NOT NULL,
			rate       TEXT NOT NULL,
			real_qty   TEXT NOT NULL DEFAULT '0',
			fee        TEXT NOT NULL DEFAULT '0',
			amount     TEXT NOT NULL DEFAULT '0',
			state      TEXT NOT NULL CHECK (state IN ('pending','open','completed','cancelled')),
			gain       TEXT NOT NULL DEFAULT '0',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_market_state ON orders(market, state);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	return &OrderStore{db: db}, nil
}

// Close closes the underlying database.
func (s *OrderStore) Close() error {
	return s.db.Close()
}

// Insert records a freshly submitted order in the pending state.
func (s *OrderStore) Insert(ctx context.Context, t *domain.Trade) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, market, side, quantity, rate, real_qty, fee, amount, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Market, string(t.Side),
		t.Quantity.String(), t.Rate.String(), t.RealQty.String(), t.Fee.String(), t.Amount.String(),
		string(domain.OrderPending), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", t.ID, err)
	}
	return nil
}

// MarkOpen moves a pending order to open after the exchange acknowledges it.
func (s *OrderStore) MarkOpen(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID,
		`UPDATE orders SET state = 'open', updated_at = ?
		 WHERE order_id = ? AND state = 'pending'`,
		time.Now().Unix(), orderID)
}

// MarkCompleted resolves an order with its fill details and realized gain.
// Gain is only meaningful for sells; buys pass zero.
func (s *OrderStore) MarkCompleted(ctx context.Context, orderID string, realQty, fee, amount, gain decimal.Decimal) error {
	return s.transition(ctx, orderID,
		`UPDATE orders SET state = 'completed', real_qty = ?, fee = ?, amount = ?, gain = ?, updated_at = ?
		 WHERE order_id = ? AND state IN ('pending','open')`,
		realQty.String(), fee.String(), amount.String(), gain.String(), time.Now().Unix(), orderID)
}

// MarkCancelled resolves an order that never (fully) filled.
func (s *OrderStore) MarkCancelled(ctx context.Context, orderID string) error {
	return s.transition(ctx, orderID,
		`UPDATE orders SET state = 'cancelled', updated_at = ?
		 WHERE order_id = ? AND state IN ('pending','open')`,
		time.Now().Unix(), orderID)
}

func (s *OrderStore) transition(ctx context.Context, orderID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of order %s: %w", orderID, err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrStaleTransition)
	}
	return nil
}

// FindUnresolved returns the market's pending or open orders for one side,
// oldest first. A clean shutdown leaves none; recovery acts on what remains.
func (s *OrderStore) FindUnresolved(ctx context.Context, market string, side domain.Side) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, market, side, quantity, rate, real_qty, fee, amount, state
		FROM orders
		WHERE market = ? AND side = ? AND state IN ('pending','open')
		ORDER BY created_at ASC`,
		market, string(side),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved orders: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// Get returns a single order by id, or nil when absent.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, market, side, quantity, rate, real_qty, fee, amount, state
		FROM orders WHERE order_id = ?`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return trades[0], nil
}

// CompletedGain sums the realized gain over all completed sells for a market.
func (s *OrderStore) CompletedGain(ctx context.Context, market string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gain FROM orders
		WHERE market = ? AND side = 'sell' AND state = 'completed'`,
		market,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query gains: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan gain: %w", err)
		}
		g, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt gain value %q: %w", raw, err)
		}
		total = total.Add(g)
	}
	return total, rows.Err()
}

func scanTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, qty, rate, realQty, fee, amount, state string
		if err := rows.Scan(&t.ID, &t.Market, &side, &qty, &rate, &realQty, &fee, &amount, &state); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		t.Side = domain.Side(side)
		t.State = domain.OrderState(state)

		var err error
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("corrupt quantity %q: %w", qty, err)
		}
		if t.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("corrupt rate %q: %w", rate, err)
		}
		if t.RealQty, err = decimal.NewFromString(realQty); err != nil {
			return nil, fmt.Errorf("corrupt real_qty %q: %w", realQty, err)
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("corrupt fee %q: %w", fee, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
