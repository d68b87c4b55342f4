package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bbot/internal/domain"
)

func testStore(t *testing.T) *OrderStore {
	t.Helper()
	store, err := NewOrderStore(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("NewOrderStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buyTrade(id string) *domain.Trade {
	return &domain.Trade{
		ID:       id,
		Market:   "BTC-LTC",
		Side:     domain.SideBuy,
		Quantity: dec("10"),
		Rate:     dec("0.01"),
	}
}

func TestInsertAndFindUnresolved(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, buyTrade("order-1")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	trades, err := store.FindUnresolved(ctx, "BTC-LTC", domain.SideBuy)
	if err != nil {
		t.Fatalf("FindUnresolved failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d unresolved, want 1", len(trades))
	}
	got := trades[0]
	if got.State != domain.OrderPending {
		t.Errorf("state = %s, want pending", got.State)
	}
	if !got.Quantity.Equal(dec("10")) || !got.Rate.Equal(dec("0.01")) {
		t.Errorf("qty/rate = %s/%s", got.Quantity, got.Rate)
	}
}

func TestFindUnresolvedFiltersMarketAndSide(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.Insert(ctx, buyTrade("order-1"))
	other := buyTrade("order-2")
	other.Market = "BTC-XRP"
	store.Insert(ctx, other)
	sell := buyTrade("order-3")
	sell.Side = domain.SideSell
	store.Insert(ctx, sell)

	trades, err := store.FindUnresolved(ctx, "BTC-LTC", domain.SideBuy)
	if err != nil {
		t.Fatalf("FindUnresolved failed: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != "order-1" {
		t.Fatalf("unexpected result %+v", trades)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.Insert(ctx, buyTrade("order-1"))
	if err := store.MarkOpen(ctx, "order-1"); err != nil {
		t.Fatalf("MarkOpen failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, "order-1", dec("9.975"), dec("0.00025"), dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	got, err := store.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != domain.OrderCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
	if !got.RealQty.Equal(dec("9.975")) || !got.Amount.Equal(dec("0.1")) {
		t.Errorf("fill details not persisted: %+v", got)
	}

	trades, _ := store.FindUnresolved(ctx, "BTC-LTC", domain.SideBuy)
	if len(trades) != 0 {
		t.Errorf("completed order still unresolved")
	}
}

func TestResolvedOrdersRejectFurtherTransitions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.Insert(ctx, buyTrade("order-1"))
	if err := store.MarkCancelled(ctx, "order-1"); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	if err := store.MarkCompleted(ctx, "order-1", dec("1"), dec("0"), dec("0"), decimal.Zero); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("completed-after-cancelled error = %v, want ErrStaleTransition", err)
	}
	if err := store.MarkOpen(ctx, "order-1"); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("open-after-cancelled error = %v, want ErrStaleTransition", err)
	}
}

func TestMarkOpenRequiresPending(t *testing.T) {
	store := testStore(t)
	if err := store.MarkOpen(context.Background(), "missing"); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("error = %v, want ErrStaleTransition", err)
	}
}

func TestDuplicateOrderIDRejected(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, buyTrade("order-1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, buyTrade("order-1")); err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestCompletedGainSumsSellsOnly(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i, gain := range []string{"0.001", "0.002"} {
		sell := buyTrade("sell-" + string(rune('a'+i)))
		sell.Side = domain.SideSell
		store.Insert(ctx, sell)
		if err := store.MarkCompleted(ctx, sell.ID, dec("10"), dec("0"), dec("0.1"), dec(gain)); err != nil {
			t.Fatalf("MarkCompleted failed: %v", err)
		}
	}
	// A cancelled sell must not count.
	cancelled := buyTrade("sell-c")
	cancelled.Side = domain.SideSell
	store.Insert(ctx, cancelled)
	store.MarkCancelled(ctx, "sell-c")

	total, err := store.CompletedGain(ctx, "BTC-LTC")
	if err != nil {
		t.Fatalf("CompletedGain failed: %v", err)
	}
	if !total.Equal(dec("0.003")) {
		t.Errorf("total gain = %s, want 0.003", total)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.db")
	ctx := context.Background()

	store, err := NewOrderStore(path)
	if err != nil {
		t.Fatalf("NewOrderStore failed: %v", err)
	}
	store.Insert(ctx, buyTrade("order-1"))
	store.MarkOpen(ctx, "order-1")
	store.Close()

	reopened, err := NewOrderStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	trades, err := reopened.FindUnresolved(ctx, "BTC-LTC", domain.SideBuy)
	if err != nil {
		t.Fatalf("FindUnresolved failed: %v", err)
	}
	if len(trades) != 1 || trades[0].State != domain.OrderOpen {
		t.Fatalf("open order not recovered: %+v", trades)
	}
}
