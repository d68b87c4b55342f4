package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"bbot/internal/domain"
	"bbot/internal/exchange"
	"bbot/internal/infra"
	"bbot/internal/metrics"
	"bbot/internal/rank"
)

// Supervisor selects the top markets by volume for the configured quote
// currency and runs one worker goroutine per market until shutdown.
type Supervisor struct {
	client  exchange.Client
	shared  *Shared
	tracker *rank.Tracker
	cfg     *infra.Config
	clock   Clock
	log     *slog.Logger
	met     *metrics.Metrics

	mu      sync.Mutex
	markets []*domain.Market
}

// NewSupervisor wires the supervisor over its collaborators.
func NewSupervisor(client exchange.Client, shared *Shared, tracker *rank.Tracker,
	cfg *infra.Config, clock Clock, log *slog.Logger, met *metrics.Metrics) *Supervisor {
	return &Supervisor{
		client:  client,
		shared:  shared,
		tracker: tracker,
		cfg:     cfg,
		clock:   clock,
		log:     log,
		met:     met,
	}
}

// SelectMarkets picks the top-N quote-currency markets by 24h base volume
// and records each market's entry rank.
func (s *Supervisor) SelectMarkets(ctx context.Context) ([]*domain.Market, error) {
	summaries, err := s.client.GetMarketSummaries(ctx)
	if err != nil {
		return nil, err
	}

	candidates := s.tracker.Filter(summaries)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no %s markets listed", s.cfg.Trading.QuoteCurrency)
	}
	if len(candidates) > s.cfg.Trading.MaxActiveMarkets {
		candidates = candidates[:s.cfg.Trading.MaxActiveMarkets]
	}

	markets := make([]*domain.Market, len(candidates))
	for i, c := range candidates {
		base, market, _ := strings.Cut(c.MarketName, "-")
		markets[i] = &domain.Market{
			Name:           c.MarketName,
			BaseCurrency:   base,
			MarketCurrency: market,
			BaseVolume:     c.BaseVolume,
			Rank:           i + 1,
		}
	}

	s.shared.SetActiveMarkets(len(markets))

	s.mu.Lock()
	s.markets = markets
	s.mu.Unlock()
	return markets, nil
}

// Markets returns the currently supervised markets, for the observer surface.
func (s *Supervisor) Markets() []*domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Market, len(s.markets))
	copy(out, s.markets)
	return out
}

// Run selects markets and blocks until every worker has stopped. Worker
// errors other than context cancellation are collected and reported once
// all workers are done.
func (s *Supervisor) Run(ctx context.Context) error {
	markets, err := s.SelectMarkets(ctx)
	if err != nil {
		return fmt.Errorf("market selection failed: %w", err)
	}

	s.log.Info("markets selected", slog.Int("count", len(markets)))
	for _, m := range markets {
		s.log.Info("supervising market",
			slog.String("market", m.Name),
			slog.Int("rank", m.Rank),
			slog.Float64("base_volume", m.BaseVolume))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(markets))

	for _, m := range markets {
		worker := NewWorker(m, s.client, s.shared, s.tracker, s.cfg, s.clock, s.log, s.met)
		wg.Add(1)
		go func(m *domain.Market) {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("worker stopped",
					slog.String("market", m.Name),
					slog.Any("error", err))
				errCh <- fmt.Errorf("%s: %w", m.Name, err)
			}
		}(m)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err // first failure is enough for the caller
	}
	return ctx.Err()
}
