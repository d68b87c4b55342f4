// Package app orchestrates startup: config, logging, workspace layout,
// the instance lock and the order ledger.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"bbot/internal/infra"
	"bbot/internal/storage"
)

// Bootstrap holds everything Initialize builds for main to wire together.
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.OrderStore

	unlock func()
}

// NewBootstrap creates an empty Bootstrap.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, installs the logger, lays out the workspace,
// takes the single-instance lock and opens the ledger. Ledger paths are
// isolated per trading mode so a paper run can never touch live records.
func (b *Bootstrap) Initialize(configPath string) error {
	if configPath == "" {
		configPath = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	mode := strings.ToLower(cfg.Trading.Mode)
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	dbPath := filepath.Join(dataDir, "orders.db")
	store, err := storage.NewOrderStore(dbPath)
	if err != nil {
		unlock()
		return err
	}
	b.Store = store

	slog.Info("order ledger opened",
		slog.String("path", dbPath),
		slog.String("mode", mode))
	return nil
}

// Shutdown releases everything Initialize acquired.
func (b *Bootstrap) Shutdown() {
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("ledger close failed", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
