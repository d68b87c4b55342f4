package bot

import (
	"context"

	"sync"

	"github.com/shopspring/decimal"

	"bbot/internal/domain"
	"bbot/internal/storage"
)

// Shared is the cross-worker state: the active-trade counter and the order
// ledger. One mutex guards both so a worker's counter change and ledger
// write are observed together; position sizing reads the counter under the
// same lock.
type Shared struct {
	mu           sync.Mutex
	activeTrades int
	maxMarkets   int
	store        *storage.OrderStore
}

// NewShared wires the shared context over the ledger.
func NewShared(store *storage.OrderStore, maxMarkets int) *Shared {
	return &Shared{store: store, maxMarkets: maxMarkets}
}

// SetActiveMarkets records how many markets were actually selected. The
// sizing divisor follows the selected count, which can be smaller than the
// configured cap when the exchange lists fewer quote-currency markets.
func (s *Shared) SetActiveMarkets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxMarkets = n
	}
}

// TradeStarted bumps the active-trade counter. Called when a buy is
// submitted, or when recovery resumes a live position.
func (s *Shared) TradeStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTrades++
}

// TradeEnded releases a slot after a sell fills or a buy is cancelled unfilled.
func (s *Shared) TradeEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTrades > 0 {
		s.activeTrades--
	}
}

// ActiveTrades reports the current counter value.
func (s *Shared) ActiveTrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTrades
}

// FreeSlots reports how many workers are not yet in a trade; never below 1
// so the sizing divisor stays sane.
func (s *Shared) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := s.maxMarkets - s.activeTrades
	if free < 1 {
		free = 1
	}
	return free
}

// RecordOrder inserts a submitted order and immediately acknowledges it.
func (s *Shared) RecordOrder(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Insert(ctx, t); err != nil {
		return err
	}
	return s.store.MarkOpen(ctx, t.ID)
}

// ResolveCompleted marks an order filled.
func (s *Shared) ResolveCompleted(ctx context.Context, orderID string, realQty, fee, amount, gain decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.MarkCompleted(ctx, orderID, realQty, fee, amount, gain)
}

// ResolveCancelled marks an order cancelled.
func (s *Shared) ResolveCancelled(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.MarkCancelled(ctx, orderID)
}

// Unresolved returns the market's pending/open orders for one side.
func (s *Shared) Unresolved(ctx context.Context, market string, side domain.Side) ([]*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.FindUnresolved(ctx, market, side)
}
