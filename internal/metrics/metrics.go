// Package metrics exposes the bot's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the bot publishes.
type Metrics struct {
	OrdersPlaced   *prometheus.CounterVec // side: buy|sell
	OrdersResolved *prometheus.CounterVec // result: completed|cancelled
	TradesClosed   *prometheus.CounterVec // result: profit|loss
	ActiveTrades   prometheus.Gauge
	MarketRSI      *prometheus.GaugeVec // market, kind: minute|hourly
	RealizedGain   *prometheus.GaugeVec // market, cumulative quote gain
	ExchangeErrors prometheus.Counter
}

// New registers all collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bbot",
			Name:      "orders_placed_total",
			Help:      "Limit orders submitted to the exchange.",
		}, []string{"side"}),
		OrdersResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bbot",
			Name:      "orders_resolved_total",
			Help:      "Orders that reached a terminal state.",
		}, []string{"result"}),
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bbot",
			Name:      "trades_closed_total",
			Help:      "Completed buy/sell round trips by outcome.",
		}, []string{"result"}),
		ActiveTrades: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "bbot",
			Name:      "active_trades",
			Help:      "Workers currently holding or awaiting a fill.",
		}),
		MarketRSI: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bbot",
			Name:      "market_rsi",
			Help:      "Latest RSI reading per market.",
		}, []string{"market", "kind"}),
		RealizedGain: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bbot",
			Name:      "realized_gain",
			Help:      "Cumulative realized gain per market, in quote currency.",
		}, []string{"market"}),
		ExchangeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "bbot",
			Name:      "exchange_errors_total",
			Help:      "Exchange calls that failed and were retried.",
		}),
	}
}

// NewDefault registers on the global Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
