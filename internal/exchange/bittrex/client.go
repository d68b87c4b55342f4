// Package bittrex implements the exchange.Client contract against the
// Bittrex v1.1/v2.0 REST API. All signing, URL building and envelope
// decoding lives here; callers only see domain values.
package bittrex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bbot/internal/domain"
	"bbot/internal/exchange"
	"bbot/internal/infra"
)

const (
	DefaultBaseURL = "https://bittrex.com/api"

	tickTimeLayout = "2006-01-02T15:04:05"
)

// Client is the REST client. A single token bucket throttles all outbound
// calls and a circuit breaker trips after repeated transport failures.
type Client struct {
	baseURL string
	httpc   *http.Client
	signer  *Signer
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
}

var _ exchange.Client = (*Client)(nil)

// NewClient builds a client from configuration. An empty base URL falls
// back to the public endpoint.
func NewClient(cfg *infra.Config) *Client {
	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		signer:  NewSigner(cfg.API.Key, cfg.API.Secret),
		limiter: infra.NewRateLimiter(5, 10),
		breaker: infra.NewCircuitBreaker("bittrex", 5, 2, 30*time.Second),
	}
}

// GetTicker returns the current top of book.
func (c *Client) GetTicker(ctx context.Context, market string) (*domain.Ticker, error) {
	raw, err := c.public(ctx, "/v1.1/public/getticker", url.Values{"market": {market}})
	if err != nil {
		return nil, err
	}
	var p tickerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("getticker: decode: %w", err)
	}
	return &domain.Ticker{Bid: p.Bid, Ask: p.Ask, Last: p.Last}, nil
}

// GetTicks returns up to count samples ordered oldest to newest.
// The v2.0 endpoint returns the full history; only the trailing window is kept.
func (c *Client) GetTicks(ctx context.Context, market, interval string, count int) ([]domain.Tick, error) {
	raw, err := c.public(ctx, "/v2.0/pub/market/GetTicks", url.Values{
		"marketName":   {market},
		"tickInterval": {interval},
	})
	if err != nil {
		return nil, err
	}

	var payload []tickPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("getticks: decode: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("getticks %s: empty result: %w", market, exchange.ErrUnavailable)
	}
	if len(payload) > count {
		payload = payload[len(payload)-count:]
	}

	ticks := make([]domain.Tick, len(payload))
	for i, p := range payload {
		ts, _ := time.Parse(tickTimeLayout, p.Timestamp)
		ticks[i] = domain.Tick{
			Open:       p.Open,
			High:       p.High,
			Low:        p.Low,
			Close:      p.Close,
			Volume:     p.Volume,
			BaseVolume: p.BaseVolume,
			Timestamp:  ts,
		}
	}
	return ticks, nil
}

// BuyLimit places a limit buy and returns the order id.
func (c *Client) BuyLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error) {
	return c.tradeLimit(ctx, "/v1.1/market/buylimit", market, qty, rate)
}

// SellLimit places a limit sell and returns the order id.
func (c *Client) SellLimit(ctx context.Context, market string, qty, rate decimal.Decimal) (string, error) {
	return c.tradeLimit(ctx, "/v1.1/market/selllimit", market, qty, rate)
}

func (c *Client) tradeLimit(ctx context.Context, path, market string, qty, rate decimal.Decimal) (string, error) {
	raw, err := c.signed(ctx, path, url.Values{
		"market":   {market},
		"quantity": {qty.StringFixed(8)},
		"rate":     {rate.StringFixed(8)},
	})
	if err != nil {
		return "", err
	}
	var p uuidPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("%s: decode: %w", path, err)
	}
	if p.UUID == "" {
		return "", fmt.Errorf("%s %s: no order id returned: %w", path, market, exchange.ErrUnavailable)
	}
	return p.UUID, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.signed(ctx, "/v1.1/market/cancel", url.Values{"uuid": {orderID}})
	return err
}

// GetOrder reports fill state for an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*exchange.OrderStatus, error) {
	raw, err := c.signed(ctx, "/v1.1/account/getorder", url.Values{"uuid": {orderID}})
	if err != nil {
		return nil, err
	}
	var p orderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("getorder: decode: %w", err)
	}
	return &exchange.OrderStatus{
		ID:                p.OrderUuid,
		IsOpen:            p.IsOpen,
		Quantity:          p.Quantity,
		QuantityRemaining: p.QuantityRemaining,
		Commission:        p.CommissionPaid,
		Price:             p.Price,
		PricePerUnit:      p.PricePerUnit,
	}, nil
}

// GetBalance returns the available balance for a currency.
func (c *Client) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	raw, err := c.signed(ctx, "/v1.1/account/getbalance", url.Values{"currency": {currency}})
	if err != nil {
		return decimal.Zero, err
	}
	var p balancePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return decimal.Zero, fmt.Errorf("getbalance: decode: %w", err)
	}
	return p.Available, nil
}

// GetMarketSummaries returns the 24h rollup for all markets, sorted
// descending by base volume (the order the selector and rank tracker expect).
func (c *Client) GetMarketSummaries(ctx context.Context) ([]domain.MarketSummary, error) {
	raw, err := c.public(ctx, "/v1.1/public/getmarketsummaries", nil)
	if err != nil {
		return nil, err
	}

	var payload []summaryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("getmarketsummaries: decode: %w", err)
	}

	summaries := make([]domain.MarketSummary, len(payload))
	for i, p := range payload {
		ts, _ := time.Parse(tickTimeLayout, p.TimeStamp)
		summaries[i] = domain.MarketSummary{
			MarketName: p.MarketName,
			Last:       p.Last,
			Bid:        p.Bid,
			Ask:        p.Ask,
			High:       p.High,
			Low:        p.Low,
			Volume:     p.Volume,
			BaseVolume: p.BaseVolume,
			PrevDay:    p.PrevDay,
			Timestamp:  ts,
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].BaseVolume > summaries[j].BaseVolume
	})
	return summaries, nil
}

// public performs an unauthenticated call.
func (c *Client) public(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	uri := c.baseURL + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	return c.do(ctx, uri, "")
}

// signed appends apikey and nonce and signs the full URI.
func (c *Client) signed(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.signer.Key())
	params.Set("nonce", c.signer.Nonce())
	uri := c.baseURL + path + "?" + params.Encode()
	return c.do(ctx, uri, c.signer.Sign(uri))
}

// do performs one HTTP round trip through the rate limiter and breaker and
// unwraps the response envelope.
func (c *Client) do(ctx context.Context, uri, apisign string) (json.RawMessage, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("bittrex: %w", infra.ErrCircuitOpen)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if apisign != "" {
		req.Header.Set("apisign", apisign)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("bittrex: %s: %w", err, exchange.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("bittrex: read body: %w", exchange.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("bittrex: http %d: %w", resp.StatusCode, exchange.ErrUnavailable)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("bittrex: decode envelope: %w", exchange.ErrUnavailable)
	}
	c.breaker.RecordSuccess()

	if !env.Success {
		return nil, fmt.Errorf("bittrex: %s: %w", env.Message, exchange.ErrUnavailable)
	}
	return env.Result, nil
}
