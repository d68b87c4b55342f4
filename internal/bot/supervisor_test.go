package bot

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"bbot/internal/domain"
	"bbot/internal/metrics"
	"bbot/internal/rank"
	"bbot/internal/storage"
)

func newSupervisorFixture(t *testing.T, fx *fakeExchange) (*Supervisor, *Shared) {
	t.Helper()
	store, err := storage.NewOrderStore(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := testConfig()
	cfg.Trading.MaxActiveMarkets = 3
	shared := NewShared(store, cfg.Trading.MaxActiveMarkets)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New(prometheus.NewRegistry())
	clock := &fakeClock{}

	return NewSupervisor(fx, shared, rank.NewTracker(fx, "BTC"), cfg, clock, log, met), shared
}

func TestSelectMarketsTopNByVolume(t *testing.T) {
	fx := newFakeExchange()
	fx.summaries = []domain.MarketSummary{
		{MarketName: "USDT-BTC", BaseVolume: 9000},
		{MarketName: "BTC-ETH", BaseVolume: 500},
		{MarketName: "BTC-LTC", BaseVolume: 400},
		{MarketName: "ETH-XRP", BaseVolume: 350},
		{MarketName: "BTC-XRP", BaseVolume: 300},
		{MarketName: "BTC-DOGE", BaseVolume: 200},
	}
	sup, _ := newSupervisorFixture(t, fx)

	markets, err := sup.SelectMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 3)

	wantNames := []string{"BTC-ETH", "BTC-LTC", "BTC-XRP"}
	for i, m := range markets {
		require.Equal(t, wantNames[i], m.Name)
		require.Equal(t, i+1, m.Rank)
		require.Equal(t, "BTC", m.BaseCurrency)
	}
	require.Equal(t, "ETH", markets[0].MarketCurrency)
}

func TestSelectMarketsFewerThanCap(t *testing.T) {
	fx := newFakeExchange()
	fx.summaries = []domain.MarketSummary{
		{MarketName: "BTC-ETH", BaseVolume: 500},
	}
	sup, shared := newSupervisorFixture(t, fx)

	markets, err := sup.SelectMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	// Sizing divides by what was selected, not the configured cap.
	require.Equal(t, 1, shared.FreeSlots())
}

func TestSelectMarketsNoneListed(t *testing.T) {
	fx := newFakeExchange()
	fx.summaries = []domain.MarketSummary{
		{MarketName: "USDT-BTC", BaseVolume: 9000},
	}
	sup, _ := newSupervisorFixture(t, fx)

	_, err := sup.SelectMarkets(context.Background())
	require.Error(t, err)
}

func TestMarketsSnapshotAfterSelection(t *testing.T) {
	fx := newFakeExchange()
	fx.summaries = []domain.MarketSummary{
		{MarketName: "BTC-ETH", BaseVolume: 500},
		{MarketName: "BTC-LTC", BaseVolume: 400},
	}
	sup, _ := newSupervisorFixture(t, fx)

	require.Empty(t, sup.Markets())
	_, err := sup.SelectMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, sup.Markets(), 2)
}
