// Package rank tracks where a market sits in the exchange's 24h volume
// ordering, restricted to one quote currency. Workers exit a market when it
// slides below the rank it held at selection time.
package rank

import (
	"context"
	"errors"
	"strings"

	"bbot/internal/domain"
	"bbot/internal/exchange"
)

// ErrNotFound is returned when a market no longer appears in the summaries.
var ErrNotFound = errors.New("market not listed")

// Tracker resolves volume ranks from fresh market summaries.
type Tracker struct {
	client exchange.Client
	prefix string
}

// NewTracker builds a tracker filtered to markets quoted in quoteCurrency.
func NewTracker(client exchange.Client, quoteCurrency string) *Tracker {
	return &Tracker{client: client, prefix: quoteCurrency + "-"}
}

// Position returns the 1-based volume rank of market among the quote
// currency's markets, from a fresh summaries call.
func (t *Tracker) Position(ctx context.Context, market string) (int, error) {
	summaries, err := t.client.GetMarketSummaries(ctx)
	if err != nil {
		return 0, err
	}
	return t.position(summaries, market)
}

func (t *Tracker) position(summaries []domain.MarketSummary, market string) (int, error) {
	rank := 0
	for _, s := range summaries {
		if !strings.HasPrefix(s.MarketName, t.prefix) {
			continue
		}
		rank++
		if s.MarketName == market {
			return rank, nil
		}
	}
	return 0, ErrNotFound
}

// Filter returns the quote currency's markets in summary (volume) order.
func (t *Tracker) Filter(summaries []domain.MarketSummary) []domain.MarketSummary {
	var out []domain.MarketSummary
	for _, s := range summaries {
		if strings.HasPrefix(s.MarketName, t.prefix) {
			out = append(out, s)
		}
	}
	return out
}
