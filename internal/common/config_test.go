package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.Mode != ModeDemo {
		t.Errorf("Mode default = %q, want demo", cfg.Mode)
	}
	if cfg.ReferenceCurrency != "GBP" {
		t.Errorf("ReferenceCurrency default = %q, want GBP", cfg.ReferenceCurrency)
	}
	if got := cfg.GetRefreshInterval(); got != time.Hour {
		t.Errorf("GetRefreshInterval default = %v, want 1h", got)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DIVFOLIO_PORT", "9090")
	t.Setenv("DIVFOLIO_MODE", "live")
	t.Setenv("DIVFOLIO_REFERENCE_CURRENCY", "usd")
	t.Setenv("T212_API_KEY", "env-key")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want 9090", cfg.Server.Port)
	}
	if cfg.Mode != ModeLive {
		t.Errorf("Mode = %q after env override, want live", cfg.Mode)
	}
	if cfg.ReferenceCurrency != "USD" {
		t.Errorf("ReferenceCurrency = %q after env override, want USD", cfg.ReferenceCurrency)
	}
	if cfg.Clients.Trading212.APIKey != "env-key" {
		t.Errorf("APIKey = %q after env override, want env-key", cfg.Clients.Trading212.APIKey)
	}
}

func TestConfig_APIKeyEnvPrecedence(t *testing.T) {
	t.Setenv("DIVFOLIO_T212_API_KEY", "prefixed")
	t.Setenv("T212_API_KEY", "plain")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Clients.Trading212.APIKey != "prefixed" {
		t.Errorf("APIKey = %q, want the DIVFOLIO_ variable to win", cfg.Clients.Trading212.APIKey)
	}
}

func TestLoadConfig_FromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divfolio.toml")
	content := `
mode = "LIVE"
reference_currency = "eur"
refresh_interval = "30m"

[server]
port = 4000

[clients.trading212]
api_key = "file-key"
rate_limit = 2

[symbols.CUSTOMl_EQ]
symbol = "CUSTOM.L"
withholding_tax = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	// Mode and currency are normalized on load
	if cfg.Mode != ModeLive {
		t.Errorf("Mode = %q, want live", cfg.Mode)
	}
	if cfg.ReferenceCurrency != "EUR" {
		t.Errorf("ReferenceCurrency = %q, want EUR", cfg.ReferenceCurrency)
	}
	if got := cfg.GetRefreshInterval(); got != 30*time.Minute {
		t.Errorf("GetRefreshInterval = %v, want 30m", got)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Clients.Trading212.APIKey != "file-key" {
		t.Errorf("APIKey = %q, want file-key", cfg.Clients.Trading212.APIKey)
	}

	override, ok := cfg.Symbols["CUSTOMl_EQ"]
	if !ok {
		t.Fatal("symbol override missing")
	}
	if override.Symbol != "CUSTOM.L" || override.WithholdingTax != 0 {
		t.Errorf("override = %+v", override)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Mode != ModeDemo {
		t.Errorf("Mode = %q, want demo default", cfg.Mode)
	}
}

func TestConfig_InvalidModeFallsBackToDemo(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Mode = "paper"
	normalize(cfg)
	if cfg.Mode != ModeDemo {
		t.Errorf("Mode = %q after normalize, want demo", cfg.Mode)
	}
}

func TestGetRefreshInterval_ZeroIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RefreshInterval = "0"
	if got := cfg.GetRefreshInterval(); got != 0 {
		t.Errorf("GetRefreshInterval(\"0\") = %v, want 0", got)
	}

	cfg.RefreshInterval = "-5m"
	if got := cfg.GetRefreshInterval(); got != time.Hour {
		t.Errorf("negative interval should fall back to 1h, got %v", got)
	}
}

func TestSettingsStore(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Clients.Trading212.APIKey = "key"
	store := NewSettingsStore(cfg.Settings())

	got := store.Current()
	if got.Mode != ModeDemo || got.APIKey != "key" || got.RefreshInterval != time.Hour {
		t.Errorf("initial settings = %+v", got)
	}

	next := got
	next.ReferenceCurrency = "USD"
	store.Update(next)

	if store.Current().ReferenceCurrency != "USD" {
		t.Errorf("ReferenceCurrency = %q after update, want USD", store.Current().ReferenceCurrency)
	}
}
