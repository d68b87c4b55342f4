package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"bbot/internal/app"
	"bbot/internal/bot"
	"bbot/internal/exchange"
	"bbot/internal/exchange/bittrex"
	"bbot/internal/exchange/paper"
	"bbot/internal/infra"
	"bbot/internal/metrics"
	"bbot/internal/observe"
	"bbot/internal/rank"
)

// Virtual quote balance a paper run starts with.
const paperStartingBalance = "1"

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: configs/config.yaml)")
	flag.Parse()

	boot := app.NewBootstrap()
	if err := boot.Initialize(*configPath); err != nil {
		slog.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer boot.Shutdown()

	cfg := boot.Config
	infra.PrintBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var client exchange.Client = bittrex.NewClient(cfg)
	if cfg.Trading.Mode == "paper" {
		client = paper.New(client, cfg.Trading.FeeRate,
			cfg.Trading.QuoteCurrency, decimal.RequireFromString(paperStartingBalance))
		slog.Info("paper trading enabled",
			slog.String("balance", paperStartingBalance),
			slog.String("currency", cfg.Trading.QuoteCurrency))
	}

	met := metrics.NewDefault()
	shared := bot.NewShared(boot.Store, cfg.Trading.MaxActiveMarkets)
	tracker := rank.NewTracker(client, cfg.Trading.QuoteCurrency)
	supervisor := bot.NewSupervisor(client, shared, tracker, cfg, bot.NewClock(), slog.Default(), met)

	if cfg.Observer.ListenAddr != "" {
		interval := time.Duration(cfg.Observer.SnapshotIntervalMS) * time.Millisecond
		observer := observe.NewServer(cfg.Observer.ListenAddr, interval, supervisor, slog.Default())
		go func() {
			if err := observer.Run(ctx); err != nil {
				slog.Error("observer stopped", slog.Any("error", err))
			}
		}()
	}

	if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("supervisor stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
