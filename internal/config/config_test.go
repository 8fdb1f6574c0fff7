package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scalper.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/scalper/data"
  trade_db_path: "/tmp/scalper/trade_history_live.db"
  pnl_db_path: "/tmp/scalper/pnl_history_live.db"
  paper_ledger_path: "/tmp/scalper/paper_account.json"
  instruments_path: "/tmp/scalper/instruments.yaml"
kite:
  api_key: "test-key"
  access_token: "test-token"
  base_url: "https://api.kite.trade"
  ticker_url: "wss://ws.kite.trade"
logging:
  level: "debug"
trading:
  paper_mode: true
  paper_balance: 250000
  refresh_seconds: 10
stream:
  reconnect_seconds: 3
  heartbeat_seconds: 10
  stale_seconds: 20
api:
  failure_threshold: 5
  cooldown_seconds: 60
`)

	os.Unsetenv("KITE_API_KEY")
	os.Unsetenv("KITE_ACCESS_TOKEN")
	os.Unsetenv("PAPER_MODE")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("DATA_DIR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/scalper/data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.InstrumentsPath != "/tmp/scalper/instruments.yaml" {
		t.Errorf("Storage.InstrumentsPath = %q", cfg.Storage.InstrumentsPath)
	}
	if cfg.Kite.APIKey != "test-key" || cfg.Kite.AccessToken != "test-token" {
		t.Errorf("Kite credentials not loaded: %+v", cfg.Kite)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Trading.PaperMode || cfg.Trading.PaperBalance != 250000 {
		t.Errorf("Trading = %+v", cfg.Trading)
	}
	if cfg.Trading.RefreshSeconds != 10 {
		t.Errorf("Trading.RefreshSeconds = %d, want 10", cfg.Trading.RefreshSeconds)
	}
	if cfg.Stream.StaleSeconds != 20 {
		t.Errorf("Stream.StaleSeconds = %d, want 20", cfg.Stream.StaleSeconds)
	}
	if cfg.API.FailureThreshold != 5 || cfg.API.CooldownSeconds != 60 {
		t.Errorf("API = %+v", cfg.API)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
kite:
  api_key: "k"
`)
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("PAPER_MODE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Trading.PaperBalance != 100000 {
		t.Errorf("default PaperBalance = %v, want 100000", cfg.Trading.PaperBalance)
	}
	if cfg.Stream.HeartbeatSeconds != 15 || cfg.Stream.StaleSeconds != 30 {
		t.Errorf("default Stream = %+v", cfg.Stream)
	}
	if cfg.API.FailureThreshold != 3 || cfg.API.CooldownSeconds != 30 {
		t.Errorf("default API = %+v", cfg.API)
	}
	if cfg.Trading.DefaultProduct != "MIS" {
		t.Errorf("default product = %q, want MIS", cfg.Trading.DefaultProduct)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
kite:
  api_key: "from-file"
trading:
  paper_mode: false
`)

	t.Setenv("KITE_API_KEY", "from-env")
	t.Setenv("PAPER_MODE", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Kite.APIKey != "from-env" {
		t.Errorf("Kite.APIKey = %q, want env override", cfg.Kite.APIKey)
	}
	if !cfg.Trading.PaperMode {
		t.Error("PAPER_MODE env override not applied")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}
