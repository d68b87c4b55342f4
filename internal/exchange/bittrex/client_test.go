package bittrex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"bbot/internal/exchange"
	"bbot/internal/infra"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &infra.Config{}
	cfg.API.BaseURL = srv.URL
	cfg.API.Key = "test-key"
	cfg.API.Secret = "test-secret"
	return NewClient(cfg)
}

func TestGetTicker(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.1/public/getticker" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("market"); got != "BTC-LTC" {
			t.Errorf("market param = %q, want BTC-LTC", got)
		}
		w.Write([]byte(`{"success":true,"message":"","result":{"Bid":0.011,"Ask":0.012,"Last":0.0115}}`))
	})

	tick, err := c.GetTicker(context.Background(), "BTC-LTC")
	if err != nil {
		t.Fatalf("GetTicker failed: %v", err)
	}
	if !tick.Ask.Equal(decimal.NewFromFloat(0.012)) {
		t.Errorf("ask = %s, want 0.012", tick.Ask)
	}
	if !tick.Last.Equal(decimal.NewFromFloat(0.0115)) {
		t.Errorf("last = %s, want 0.0115", tick.Last)
	}
}

func TestGetTicksKeepsTrailingWindow(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tickInterval"); got != exchange.IntervalOneMin {
			t.Errorf("tickInterval = %q, want %s", got, exchange.IntervalOneMin)
		}
		w.Write([]byte(`{"success":true,"message":"","result":[
			{"O":1,"H":1,"L":1,"C":1,"V":10,"BV":0.1,"T":"2018-01-02T15:04:00"},
			{"O":1,"H":1,"L":1,"C":2,"V":10,"BV":0.1,"T":"2018-01-02T15:05:00"},
			{"O":1,"H":1,"L":1,"C":3,"V":10,"BV":0.1,"T":"2018-01-02T15:06:00"}]}`))
	})

	ticks, err := c.GetTicks(context.Background(), "BTC-LTC", exchange.IntervalOneMin, 2)
	if err != nil {
		t.Fatalf("GetTicks failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("got %d ticks, want 2", len(ticks))
	}
	if ticks[0].Close != 2 || ticks[1].Close != 3 {
		t.Errorf("trailing window wrong: closes %v %v", ticks[0].Close, ticks[1].Close)
	}
	if !ticks[0].Timestamp.Before(ticks[1].Timestamp) {
		t.Error("ticks not ordered oldest to newest")
	}
}

func TestGetTicksEmptyIsUnavailable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"","result":[]}`))
	})
	if _, err := c.GetTicks(context.Background(), "BTC-LTC", exchange.IntervalOneMin, 30); !errors.Is(err, exchange.ErrUnavailable) {
		t.Errorf("empty result error = %v, want ErrUnavailable", err)
	}
}

func TestBuyLimitSignsRequest(t *testing.T) {
	var gotSign string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSign = r.Header.Get("apisign")
		q := r.URL.Query()
		if q.Get("apikey") != "test-key" {
			t.Errorf("apikey = %q", q.Get("apikey"))
		}
		if q.Get("nonce") == "" {
			t.Error("missing nonce")
		}
		if q.Get("quantity") != "10.00000000" || q.Get("rate") != "0.00100000" {
			t.Errorf("qty/rate = %q/%q", q.Get("quantity"), q.Get("rate"))
		}
		w.Write([]byte(`{"success":true,"message":"","result":{"uuid":"abc-123"}}`))
	})

	id, err := c.BuyLimit(context.Background(), "BTC-LTC", decimal.NewFromInt(10), decimal.NewFromFloat(0.001))
	if err != nil {
		t.Fatalf("BuyLimit failed: %v", err)
	}
	if id != "abc-123" {
		t.Errorf("order id = %q, want abc-123", id)
	}
	if len(gotSign) != 128 {
		t.Errorf("apisign length = %d, want 128 hex chars", len(gotSign))
	}
}

func TestEnvelopeFailureIsUnavailable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"INVALID_MARKET","result":null}`))
	})
	_, err := c.GetTicker(context.Background(), "BTC-NOPE")
	if !errors.Is(err, exchange.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestGetMarketSummariesSortedByVolume(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"","result":[
			{"MarketName":"BTC-AAA","Last":0.1,"Bid":0.1,"Ask":0.1,"BaseVolume":5,"TimeStamp":"2018-01-02T15:04:05"},
			{"MarketName":"BTC-BBB","Last":0.2,"Bid":0.2,"Ask":0.2,"BaseVolume":50,"TimeStamp":"2018-01-02T15:04:05"},
			{"MarketName":"ETH-CCC","Last":0.3,"Bid":0.3,"Ask":0.3,"BaseVolume":20,"TimeStamp":"2018-01-02T15:04:05"}]}`))
	})

	sums, err := c.GetMarketSummaries(context.Background())
	if err != nil {
		t.Fatalf("GetMarketSummaries failed: %v", err)
	}
	want := []string{"BTC-BBB", "ETH-CCC", "BTC-AAA"}
	for i, name := range want {
		if sums[i].MarketName != name {
			t.Errorf("summaries[%d] = %s, want %s", i, sums[i].MarketName, name)
		}
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := c.GetTicker(ctx, "BTC-LTC"); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.GetTicker(ctx, "BTC-LTC")
	if !errors.Is(err, infra.ErrCircuitOpen) {
		t.Errorf("error after threshold = %v, want ErrCircuitOpen", err)
	}
}
