package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
// Secrets can be supplied via environment variables which take precedence
// over the file: BBOT_API_KEY, BBOT_API_SECRET.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode             string  `yaml:"mode"`               // "paper" or "live"
		QuoteCurrency    string  `yaml:"quote_currency"`     // e.g. "BTC"
		MaxActiveMarkets int     `yaml:"max_active_markets"` // worker cap N
		BuyRSI           float64 `yaml:"buy_rsi"`            // buy below this (minute RSI)
		SellRSI          float64 `yaml:"sell_rsi"`           // sell at/above this while in profit
		HourlyRSIMax     float64 `yaml:"hourly_rsi_max"`     // skip buys when the hourly RSI is above
		MinGainPct       float64 `yaml:"min_gain_pct"`       // unconditional sell at this fraction of cost
		FeeRate          float64 `yaml:"fee_rate"`           // exchange commission per side
		SizingFactor     float64 `yaml:"sizing_factor"`      // fraction of the per-market slice to spend
	} `yaml:"trading"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Key     string `yaml:"key"`
		Secret  string `yaml:"secret"`
	} `yaml:"api"`

	Observer struct {
		ListenAddr         string `yaml:"listen_addr"`
		SnapshotIntervalMS int    `yaml:"snapshot_interval_ms"`
	} `yaml:"observer"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML config, applies env overrides and
// defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.Trading.QuoteCurrency == "" {
		c.Trading.QuoteCurrency = "BTC"
	}
	if c.Trading.MaxActiveMarkets == 0 {
		c.Trading.MaxActiveMarkets = 5
	}
	if c.Trading.BuyRSI == 0 {
		c.Trading.BuyRSI = 30
	}
	if c.Trading.SellRSI == 0 {
		c.Trading.SellRSI = 70
	}
	if c.Trading.HourlyRSIMax == 0 {
		c.Trading.HourlyRSIMax = 70
	}
	if c.Trading.MinGainPct == 0 {
		c.Trading.MinGainPct = 0.01
	}
	if c.Trading.FeeRate == 0 {
		c.Trading.FeeRate = 0.0025
	}
	if c.Trading.SizingFactor == 0 {
		c.Trading.SizingFactor = 0.99
	}
	if c.Observer.SnapshotIntervalMS == 0 {
		c.Observer.SnapshotIntervalMS = 1000
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("unknown trading mode %q", c.Trading.Mode)
	}
	if c.Trading.Mode == "live" && (c.API.Key == "" || c.API.Secret == "") {
		return fmt.Errorf("live mode requires api key and secret")
	}
	if c.Trading.MaxActiveMarkets < 1 {
		return fmt.Errorf("max_active_markets must be positive")
	}
	if c.Trading.BuyRSI <= 0 || c.Trading.BuyRSI >= 100 {
		return fmt.Errorf("buy_rsi must be in (0,100)")
	}
	if c.Trading.SellRSI <= c.Trading.BuyRSI || c.Trading.SellRSI >= 100 {
		return fmt.Errorf("sell_rsi must be in (buy_rsi,100)")
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("fee_rate must be in [0,1)")
	}
	if c.Trading.SizingFactor <= 0 || c.Trading.SizingFactor > 1 {
		return fmt.Errorf("sizing_factor must be in (0,1]")
	}
	return nil
}

// overrideWithEnv lets environment variables replace file-provided secrets.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("BBOT_API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if secret := os.Getenv("BBOT_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
}
