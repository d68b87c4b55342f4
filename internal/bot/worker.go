// Package bot holds the per-market trading state machine and the supervisor
// that runs one worker per selected market.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bbot/internal/domain"
	"bbot/internal/exchange"
	"bbot/internal/indicator"
	"bbot/internal/infra"
	"bbot/internal/metrics"
	"bbot/internal/rank"
)

// State of a worker's market.
type State int

const (
	StateIdle State = iota
	StateAwaitingBuyFill
	StateHolding
	StateAwaitingSellFill
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingBuyFill:
		return "awaiting_buy_fill"
	case StateHolding:
		return "holding"
	case StateAwaitingSellFill:
		return "awaiting_sell_fill"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ErrCorruptLedger is fatal for a worker: the ledger holds unresolved orders
// on both sides of the same market, which no valid history can produce.
var ErrCorruptLedger = errors.New("unresolved orders on both sides")

const (
	rsiPeriod     = 14
	tickWindow    = 40 // closes fetched per indicator refresh; RSI(14) needs 15
	pollEvery     = time.Second
	idlePollEvery = 5 * time.Second
	idleEvery     = time.Minute
	buyPatience   = time.Minute // open buys younger than this are left alone
)

// Worker drives one market through idle -> awaiting buy fill -> holding ->
// awaiting sell fill, then either back to idle or out via exited.
type Worker struct {
	market  *domain.Market
	client  exchange.Client
	shared  *Shared
	tracker *rank.Tracker
	cfg     *infra.Config
	clock   Clock
	log     *slog.Logger
	met     *metrics.Metrics

	backoff   infra.Backoff
	entryRank int

	state State
	buy   *domain.Trade // current position's buy; set while holding
	sell  *domain.Trade

	lastRSI     float64
	lastRSIAt   time.Time
	buyPlacedAt time.Time
}

// NewWorker builds a worker for one market. entryRank is the market's volume
// rank at selection time; the worker exits once the market slides below it.
func NewWorker(market *domain.Market, client exchange.Client, shared *Shared, tracker *rank.Tracker,
	cfg *infra.Config, clock Clock, log *slog.Logger, met *metrics.Metrics) *Worker {
	return &Worker{
		market:    market,
		client:    client,
		shared:    shared,
		tracker:   tracker,
		cfg:       cfg,
		clock:     clock,
		log:       log.With(slog.String("market", market.Name)),
		met:       met,
		backoff:   infra.DefaultBackoff(),
		entryRank: market.Rank,
		state:     StateIdle,
	}
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return w.state
}

// Run executes the state machine until the market is exited, the context is
// cancelled, or the ledger turns out to be corrupt. Transient exchange
// failures are retried with bounded backoff.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.resume(ctx); err != nil {
		return err
	}
	if err := w.bootstrapIndicators(ctx); err != nil {
		return err
	}

	retries := 0
	for ctx.Err() == nil {
		var err error
		switch w.state {
		case StateIdle:
			err = w.cycleIdle(ctx)
		case StateAwaitingBuyFill:
			err = w.awaitBuyFill(ctx)
		case StateHolding:
			err = w.cycleHolding(ctx)
		case StateAwaitingSellFill:
			err = w.awaitSellFill(ctx)
		case StateExited:
			w.log.Info("worker exited market")
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrCorruptLedger) {
				return err
			}
			w.met.ExchangeErrors.Inc()
			retries++
			delay := w.backoff.Delay(retries)
			w.log.Warn("cycle failed, backing off",
				slog.String("state", w.state.String()),
				slog.Int("retry", retries),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			if err := w.clock.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		retries = 0
	}
	return ctx.Err()
}

// bootstrapIndicators primes the indicator snapshot before trading starts.
// One retry, then the worker refuses to run on a market it cannot read.
func (w *Worker) bootstrapIndicators(ctx context.Context) error {
	_, _, err := w.refreshIndicators(ctx)
	if err == nil {
		return nil
	}
	if err := w.clock.Sleep(ctx, w.backoff.Delay(0)); err != nil {
		return err
	}
	if _, _, err = w.refreshIndicators(ctx); err != nil {
		return fmt.Errorf("indicator bootstrap for %s: %w", w.market.Name, err)
	}
	return nil
}

// resume reconciles the ledger with the exchange after a restart. At most
// one side may hold an unresolved order; finding both is corruption and
// stops the worker before it can trade.
func (w *Worker) resume(ctx context.Context) error {
	buys, err := w.shared.Unresolved(ctx, w.market.Name, domain.SideBuy)
	if err != nil {
		return err
	}
	sells, err := w.shared.Unresolved(ctx, w.market.Name, domain.SideSell)
	if err != nil {
		return err
	}
	if len(buys) > 0 && len(sells) > 0 {
		return fmt.Errorf("%s: %w", w.market.Name, ErrCorruptLedger)
	}

	switch {
	case len(sells) > 0:
		return w.resumeSell(ctx, sells[len(sells)-1])
	case len(buys) > 0:
		return w.resumeBuy(ctx, buys[len(buys)-1])
	default:
		w.state = StateIdle
		return nil
	}
}

func (w *Worker) resumeBuy(ctx context.Context, t *domain.Trade) error {
	status, err := w.client.GetOrder(ctx, t.ID)
	if err != nil {
		return err
	}
	if status.IsOpen {
		w.log.Info("resuming open buy", slog.String("order", t.ID))
		w.buy = t
		w.buyPlacedAt = w.clock.Now()
		w.shared.TradeStarted()
		w.met.ActiveTrades.Inc()
		w.state = StateAwaitingBuyFill
		return nil
	}
	if status.FilledQuantity().IsPositive() {
		w.log.Info("resuming filled buy as position", slog.String("order", t.ID))
		if err := w.finalizeBuy(ctx, t, status); err != nil {
			return err
		}
		w.shared.TradeStarted()
		w.met.ActiveTrades.Inc()
		w.state = StateHolding
		return nil
	}
	// Cancelled on the exchange while we were down.
	if err := w.shared.ResolveCancelled(ctx, t.ID); err != nil {
		return err
	}
	w.met.OrdersResolved.WithLabelValues("cancelled").Inc()
	w.state = StateIdle
	return nil
}

func (w *Worker) resumeSell(ctx context.Context, t *domain.Trade) error {
	status, err := w.client.GetOrder(ctx, t.ID)
	if err != nil {
		return err
	}
	if status.IsOpen {
		w.log.Info("resuming open sell", slog.String("order", t.ID))
		w.sell = t
		w.shared.TradeStarted()
		w.met.ActiveTrades.Inc()
		w.state = StateAwaitingSellFill
		return nil
	}
	if status.FilledQuantity().IsPositive() {
		w.log.Info("sell filled while down, settling", slog.String("order", t.ID))
		// Balance the slot accounting settleSell releases.
		w.shared.TradeStarted()
		w.met.ActiveTrades.Inc()
		if err := w.settleSell(ctx, t, status); err != nil {
			return err
		}
		w.state = StateIdle
		return nil
	}
	// Sell cancelled on the exchange: we still hold the coins, so rebuild the
	// position from the cost basis carried on the sell row.
	if err := w.shared.ResolveCancelled(ctx, t.ID); err != nil {
		return err
	}
	w.met.OrdersResolved.WithLabelValues("cancelled").Inc()
	w.buy = &domain.Trade{
		ID:      t.ID,
		Market:  t.Market,
		Side:    domain.SideBuy,
		RealQty: t.Quantity,
		Amount:  t.Amount,
		State:   domain.OrderCompleted,
	}
	w.shared.TradeStarted()
	w.met.ActiveTrades.Inc()
	w.state = StateHolding
	return nil
}

// cycleIdle refreshes indicators once a minute and places a buy when the
// minute RSI dips below the threshold while the hourly RSI stays calm.
func (w *Worker) cycleIdle(ctx context.Context) error {
	minuteRSI, hourlyRSI, err := w.refreshIndicators(ctx)
	if err != nil {
		return err
	}

	shouldBuy := minuteRSI > 0 &&
		minuteRSI < w.cfg.Trading.BuyRSI &&
		hourlyRSI < w.cfg.Trading.HourlyRSIMax
	if !shouldBuy {
		return w.idleWatch(ctx)
	}

	return w.placeBuy(ctx, minuteRSI)
}

// idleWatch rides out the minute between indicator refreshes with light
// ticker polls that keep the last-price snapshot current.
func (w *Worker) idleWatch(ctx context.Context) error {
	deadline := w.clock.Now().Add(idleEvery)
	for w.clock.Now().Before(deadline) {
		if err := w.clock.Sleep(ctx, idlePollEvery); err != nil {
			return err
		}
		ticker, err := w.client.GetTicker(ctx, w.market.Name)
		if err != nil {
			return err
		}
		w.market.PublishLastPrice(ticker.Last, w.clock.Now())
	}
	return nil
}

func (w *Worker) placeBuy(ctx context.Context, minuteRSI float64) error {
	ticker, err := w.client.GetTicker(ctx, w.market.Name)
	if err != nil {
		return err
	}
	if !ticker.Ask.IsPositive() {
		return fmt.Errorf("%s: zero ask: %w", w.market.Name, exchange.ErrUnavailable)
	}
	w.market.PublishLastPrice(ticker.Last, w.clock.Now())

	avail, err := w.client.GetBalance(ctx, w.cfg.Trading.QuoteCurrency)
	if err != nil {
		return err
	}

	// Split the free balance across workers still waiting to buy, shave a
	// little off for fees, and convert to base quantity at the ask.
	slots := int64(w.shared.FreeSlots())
	spend := avail.
		Div(decimal.NewFromInt(slots)).
		Mul(decimal.NewFromFloat(w.cfg.Trading.SizingFactor))
	qty := spend.Div(ticker.Ask).Truncate(8)

	if !qty.IsPositive() {
		w.log.Debug("balance too small to buy", slog.String("available", avail.String()))
		return w.clock.Sleep(ctx, idleEvery)
	}
	if w.market.MinTradeSize.IsPositive() && qty.LessThan(w.market.MinTradeSize) {
		w.log.Debug("buy below market minimum", slog.String("qty", qty.String()))
		return w.clock.Sleep(ctx, idleEvery)
	}

	id, err := w.client.BuyLimit(ctx, w.market.Name, qty, ticker.Ask)
	if err != nil {
		return err
	}

	trade := &domain.Trade{
		ID:       id,
		Market:   w.market.Name,
		Side:     domain.SideBuy,
		Quantity: qty,
		Rate:     ticker.Ask,
		State:    domain.OrderOpen,
	}
	// The buy is already live at the exchange; a ledger failure must not
	// abandon it, or the next cycle would place a second one.
	if err := w.shared.RecordOrder(ctx, trade); err != nil {
		w.log.Error("ledger write failed for live buy",
			slog.String("order", id),
			slog.Any("error", err))
	}
	w.shared.TradeStarted()

	w.buy = trade
	w.buyPlacedAt = w.clock.Now()
	w.lastRSI = minuteRSI
	w.state = StateAwaitingBuyFill

	w.met.OrdersPlaced.WithLabelValues("buy").Inc()
	w.met.ActiveTrades.Inc()
	w.log.Info("buy placed",
		slog.String("order", id),
		slog.String("qty", qty.String()),
		slog.String("rate", ticker.Ask.String()),
		slog.Float64("rsi", minuteRSI))
	return nil
}

// awaitBuyFill polls the open buy once a second. A buy older than the
// patience window is cancelled when the RSI has recovered above the buy
// threshold and is still climbing.
func (w *Worker) awaitBuyFill(ctx context.Context) error {
	status, err := w.client.GetOrder(ctx, w.buy.ID)
	if err != nil {
		return err
	}

	if !status.IsOpen {
		return w.onBuyClosed(ctx, status)
	}

	// RSI is recomputed at most once a minute even while the 1s polls run.
	if w.clock.Now().Sub(w.buyPlacedAt) >= buyPatience &&
		w.clock.Now().Sub(w.lastRSIAt) >= idleEvery {
		minuteRSI, _, err := w.refreshIndicators(ctx)
		if err != nil {
			return err
		}
		rising := minuteRSI > w.lastRSI
		w.lastRSI = minuteRSI
		if minuteRSI > w.cfg.Trading.BuyRSI && rising {
			return w.cancelBuy(ctx)
		}
	}
	return w.clock.Sleep(ctx, pollEvery)
}

// cancelBuy withdraws the stale buy, then re-reads the order: the cancel can
// race a fill, and a partial fill still becomes a position.
func (w *Worker) cancelBuy(ctx context.Context) error {
	w.log.Info("cancelling stale buy", slog.String("order", w.buy.ID))
	if err := w.client.CancelOrder(ctx, w.buy.ID); err != nil {
		return err
	}
	status, err := w.client.GetOrder(ctx, w.buy.ID)
	if err != nil {
		return err
	}
	if status.IsOpen {
		// Cancel not yet effective; keep polling.
		return w.clock.Sleep(ctx, pollEvery)
	}
	return w.onBuyClosed(ctx, status)
}

func (w *Worker) onBuyClosed(ctx context.Context, status *exchange.OrderStatus) error {
	if status.FilledQuantity().IsPositive() {
		if err := w.finalizeBuy(ctx, w.buy, status); err != nil {
			return err
		}
		w.state = StateHolding
		w.log.Info("buy filled",
			slog.String("order", w.buy.ID),
			slog.String("real_qty", w.buy.RealQty.String()),
			slog.String("paid", w.buy.Amount.String()))
		return nil
	}

	if err := w.shared.ResolveCancelled(ctx, w.buy.ID); err != nil {
		return err
	}
	w.shared.TradeEnded()
	w.met.OrdersResolved.WithLabelValues("cancelled").Inc()
	w.met.ActiveTrades.Dec()
	w.buy = nil
	w.state = StateIdle
	return nil
}

// finalizeBuy marks the buy completed and captures the fill: what actually
// filled, and the full quote outlay including commission.
func (w *Worker) finalizeBuy(ctx context.Context, t *domain.Trade, status *exchange.OrderStatus) error {
	realQty := status.FilledQuantity()
	paid := status.Price.Add(status.Commission)

	if err := w.shared.ResolveCompleted(ctx, t.ID, realQty, status.Commission, paid, decimal.Zero); err != nil {
		return err
	}
	t.RealQty = realQty
	t.Fee = status.Commission
	t.Amount = paid
	t.State = domain.OrderCompleted
	w.buy = t

	w.met.OrdersResolved.WithLabelValues("completed").Inc()
	return nil
}

// cycleHolding watches the price once a second and refreshes the RSI once a
// minute. The position is closed when it is in profit at an overbought RSI,
// or unconditionally once the gain clears the configured floor.
func (w *Worker) cycleHolding(ctx context.Context) error {
	ticker, err := w.client.GetTicker(ctx, w.market.Name)
	if err != nil {
		return err
	}
	w.market.PublishLastPrice(ticker.Last, w.clock.Now())

	if w.clock.Now().Sub(w.lastRSIAt) >= idleEvery {
		if w.lastRSI, _, err = w.refreshIndicators(ctx); err != nil {
			return err
		}
	}

	gain := w.unrealizedGain(ticker.Last)
	floor := w.buy.Amount.Mul(decimal.NewFromFloat(w.cfg.Trading.MinGainPct))

	shouldSell := (gain.IsPositive() && w.lastRSI >= w.cfg.Trading.SellRSI) ||
		gain.GreaterThanOrEqual(floor)
	if !shouldSell {
		return w.clock.Sleep(ctx, pollEvery)
	}
	return w.placeSell(ctx, ticker.Bid, gain)
}

// unrealizedGain is what selling realQty at price would net after the sell
// fee, minus the full amount paid on the way in.
func (w *Worker) unrealizedGain(price decimal.Decimal) decimal.Decimal {
	fee := decimal.NewFromFloat(w.cfg.Trading.FeeRate)
	proceeds := price.Mul(w.buy.RealQty).Mul(decimal.NewFromInt(1).Sub(fee))
	return proceeds.Sub(w.buy.Amount)
}

func (w *Worker) placeSell(ctx context.Context, bid, gain decimal.Decimal) error {
	if !bid.IsPositive() {
		return fmt.Errorf("%s: zero bid: %w", w.market.Name, exchange.ErrUnavailable)
	}

	id, err := w.client.SellLimit(ctx, w.market.Name, w.buy.RealQty, bid)
	if err != nil {
		return err
	}

	// The sell row carries the buy's cost basis in Amount so the realized
	// gain can still be computed after a restart.
	trade := &domain.Trade{
		ID:       id,
		Market:   w.market.Name,
		Side:     domain.SideSell,
		Quantity: w.buy.RealQty,
		Rate:     bid,
		Amount:   w.buy.Amount,
		State:    domain.OrderOpen,
	}
	// As with buys, the order already exists at the exchange; track it even
	// if the ledger write fails.
	if err := w.shared.RecordOrder(ctx, trade); err != nil {
		w.log.Error("ledger write failed for live sell",
			slog.String("order", id),
			slog.Any("error", err))
	}

	w.sell = trade
	w.state = StateAwaitingSellFill

	w.met.OrdersPlaced.WithLabelValues("sell").Inc()
	w.log.Info("sell placed",
		slog.String("order", id),
		slog.String("qty", w.buy.RealQty.String()),
		slog.String("rate", bid.String()),
		slog.String("unrealized_gain", gain.String()))
	return nil
}

// awaitSellFill polls the open sell once a second. After the fill settles it
// re-checks the market's volume rank and exits the market if it has slipped
// below where it stood at selection.
func (w *Worker) awaitSellFill(ctx context.Context) error {
	status, err := w.client.GetOrder(ctx, w.sell.ID)
	if err != nil {
		return err
	}
	if status.IsOpen {
		return w.clock.Sleep(ctx, pollEvery)
	}

	if !status.FilledQuantity().IsPositive() {
		// Cancelled externally: the position is still on.
		if err := w.shared.ResolveCancelled(ctx, w.sell.ID); err != nil {
			return err
		}
		w.met.OrdersResolved.WithLabelValues("cancelled").Inc()
		w.sell = nil
		w.state = StateHolding
		return nil
	}

	if err := w.settleSell(ctx, w.sell, status); err != nil {
		return err
	}
	w.buy = nil
	w.sell = nil

	pos, err := w.tracker.Position(ctx, w.market.Name)
	if errors.Is(err, rank.ErrNotFound) || (err == nil && pos > w.entryRank) {
		w.log.Info("market fell out of rank, exiting",
			slog.Int("entry_rank", w.entryRank),
			slog.Int("rank", pos))
		w.state = StateExited
		return nil
	}
	if err != nil {
		// Rank check is advisory; keep trading rather than retry-looping.
		w.log.Warn("rank check failed, staying in market", slog.Any("error", err))
	}
	w.state = StateIdle
	return nil
}

// settleSell resolves the filled sell in the ledger with the realized gain
// and releases the trade slot.
func (w *Worker) settleSell(ctx context.Context, t *domain.Trade, status *exchange.OrderStatus) error {
	proceeds := status.Price.Sub(status.Commission)
	gain := proceeds.Sub(t.Amount)

	if err := w.shared.ResolveCompleted(ctx, t.ID, status.FilledQuantity(), status.Commission, t.Amount, gain); err != nil {
		return err
	}
	w.shared.TradeEnded()

	result := "profit"
	if gain.IsNegative() {
		result = "loss"
	}
	w.met.OrdersResolved.WithLabelValues("completed").Inc()
	w.met.TradesClosed.WithLabelValues(result).Inc()
	w.met.ActiveTrades.Dec()
	gainF, _ := gain.Float64()
	w.met.RealizedGain.WithLabelValues(w.market.Name).Add(gainF)

	w.log.Info("sell filled",
		slog.String("order", t.ID),
		slog.String("gain", gain.String()),
		slog.String("result", result))
	return nil
}

// refreshIndicators pulls fresh minute and hourly candles, recomputes the
// indicator set, and publishes it on the market for observers.
func (w *Worker) refreshIndicators(ctx context.Context) (minuteRSI, hourlyRSI float64, err error) {
	minTicks, err := w.client.GetTicks(ctx, w.market.Name, exchange.IntervalOneMin, tickWindow)
	if err != nil {
		return 0, 0, err
	}
	hourTicks, err := w.client.GetTicks(ctx, w.market.Name, exchange.IntervalHour, tickWindow)
	if err != nil {
		return 0, 0, err
	}

	minCloses := domain.Closes(minTicks)
	hourCloses := domain.Closes(hourTicks)

	ind := domain.Indicators{
		WilderRSI:  indicator.WilderRSI(minCloses, rsiPeriod),
		ClassicRSI: indicator.ClassicRSI(minCloses, rsiPeriod),
		HourlyRSI:  indicator.WilderRSI(hourCloses, rsiPeriod),
		MACD:       indicator.MACD(minCloses),
		LastPrice:  w.market.Snapshot().LastPrice,
		UpdatedAt:  w.clock.Now(),
	}
	if ema := indicator.EMA(minCloses, 14); len(ema) > 0 {
		ind.EMA14 = ema[len(ema)-1]
	}
	if ema := indicator.EMA(minCloses, 28); len(ema) > 0 {
		ind.EMA28 = ema[len(ema)-1]
	}
	w.market.PublishIndicators(ind)
	w.market.LastTickCount = len(minTicks)

	w.met.MarketRSI.WithLabelValues(w.market.Name, "minute").Set(ind.WilderRSI)
	w.met.MarketRSI.WithLabelValues(w.market.Name, "hourly").Set(ind.HourlyRSI)

	w.lastRSIAt = w.clock.Now()
	return ind.WilderRSI, ind.HourlyRSI, nil
}
