// Package config loads the terminal configuration from YAML with
// environment variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the scalper terminal.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Kite    Kite          `yaml:"kite"`
	Logging Logging       `yaml:"logging"`
	Trading TradingConfig `yaml:"trading"`
	Stream  StreamConfig  `yaml:"stream"`
	API     APIConfig     `yaml:"api"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir         string `yaml:"data_dir"`          // parquet tick files
	TradeDBPath     string `yaml:"trade_db_path"`     // trade history sqlite
	PnlDBPath       string `yaml:"pnl_db_path"`       // realized P&L sqlite
	PaperLedgerPath string `yaml:"paper_ledger_path"` // simulated account JSON
	InstrumentsPath string `yaml:"instruments_path"`  // instrument metadata YAML
}

// Kite holds credentials and endpoints for the broker API.
type Kite struct {
	APIKey      string `yaml:"api_key"`
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
	TickerURL   string `yaml:"ticker_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// TradingConfig defines execution parameters.
type TradingConfig struct {
	PaperMode         bool    `yaml:"paper_mode"`
	PaperBalance      float64 `yaml:"paper_balance"`
	RefreshSeconds    int     `yaml:"refresh_seconds"`     // reconciliation cadence
	MaxOrdersPerMin   int     `yaml:"max_orders_per_min"`  // submission rate cap
	DefaultProduct    string  `yaml:"default_product"`     // MIS or NRML
	RecordTicks       bool    `yaml:"record_ticks"`        // persist ticks to parquet
}

// StreamConfig tunes the market-data connection supervisor.
type StreamConfig struct {
	ReconnectSeconds int `yaml:"reconnect_seconds"` // delay between reconnect attempts
	HeartbeatSeconds int `yaml:"heartbeat_seconds"` // staleness check interval
	StaleSeconds     int `yaml:"stale_seconds"`     // no-tick window before forced reconnect
}

// APIConfig tunes the broker-call resilience layer.
type APIConfig struct {
	FailureThreshold int `yaml:"failure_threshold"` // breaker trips after this many failures
	CooldownSeconds  int `yaml:"cooldown_seconds"`  // breaker OPEN duration
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults for unset tunables, and then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Trading.PaperBalance == 0 {
		cfg.Trading.PaperBalance = 100000
	}
	if cfg.Trading.RefreshSeconds == 0 {
		cfg.Trading.RefreshSeconds = 5
	}
	if cfg.Trading.MaxOrdersPerMin == 0 {
		cfg.Trading.MaxOrdersPerMin = 600
	}
	if cfg.Trading.DefaultProduct == "" {
		cfg.Trading.DefaultProduct = "MIS"
	}
	if cfg.Stream.ReconnectSeconds == 0 {
		cfg.Stream.ReconnectSeconds = 5
	}
	if cfg.Stream.HeartbeatSeconds == 0 {
		cfg.Stream.HeartbeatSeconds = 15
	}
	if cfg.Stream.StaleSeconds == 0 {
		cfg.Stream.StaleSeconds = 30
	}
	if cfg.API.FailureThreshold == 0 {
		cfg.API.FailureThreshold = 3
	}
	if cfg.API.CooldownSeconds == 0 {
		cfg.API.CooldownSeconds = 30
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("TRADE_DB_PATH"); v != "" {
		cfg.Storage.TradeDBPath = v
	}
	if v := os.Getenv("PNL_DB_PATH"); v != "" {
		cfg.Storage.PnlDBPath = v
	}
	if v := os.Getenv("PAPER_LEDGER_PATH"); v != "" {
		cfg.Storage.PaperLedgerPath = v
	}
	if v := os.Getenv("INSTRUMENTS_PATH"); v != "" {
		cfg.Storage.InstrumentsPath = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Kite.AccessToken = v
	}
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Kite.BaseURL = v
	}
	if v := os.Getenv("KITE_TICKER_URL"); v != "" {
		cfg.Kite.TickerURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PAPER_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.PaperMode = b
		}
	}
}
