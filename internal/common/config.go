// Package common provides shared utilities for Divfolio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Mode selects which Trading 212 environment the broker client talks to.
const (
	ModeLive = "live"
	ModeDemo = "demo"
)

// Config holds all configuration for Divfolio
type Config struct {
	Mode              string                    `toml:"mode"`               // "live" or "demo"
	ReferenceCurrency string                    `toml:"reference_currency"` // currency all valuations are normalized to
	RefreshInterval   string                    `toml:"refresh_interval"`   // duration string; "0" means refresh only on demand
	Server            ServerConfig              `toml:"server"`
	Clients           ClientsConfig             `toml:"clients"`
	Rates             RatesConfig               `toml:"rates"`
	Symbols           map[string]SymbolOverride `toml:"symbols"` // broker ticker -> quote symbol + WHT overrides
	Logging           LoggingConfig             `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Trading212  Trading212Config  `toml:"trading212"`
	Frankfurter FrankfurterConfig `toml:"frankfurter"`
	Yahoo       YahooConfig       `toml:"yahoo"`
}

// Trading212Config holds Trading 212 API configuration
type Trading212Config struct {
	BaseURL     string `toml:"base_url"`
	DemoBaseURL string `toml:"demo_base_url"`
	APIKey      string `toml:"api_key"`
	RateLimit   int    `toml:"rate_limit"`
	Timeout     string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *Trading212Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// FrankfurterConfig holds exchange-rate API configuration
type FrankfurterConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *FrankfurterConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// YahooConfig holds quote-facts API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RatesConfig controls the exchange-rate cache
type RatesConfig struct {
	MaxAge string `toml:"max_age"` // cache age beyond which rates are refetched
}

// GetMaxAge parses and returns the rate cache TTL
func (c *RatesConfig) GetMaxAge() time.Duration {
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil {
		return time.Hour
	}
	return d
}

// SymbolOverride maps one broker ticker to its quote symbol and withholding tax rate
type SymbolOverride struct {
	Symbol         string `toml:"symbol"`
	WithholdingTax int    `toml:"withholding_tax"` // percent, 0-100
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// GetRefreshInterval parses the refresh interval. Zero is a valid value and
// means the scheduler waits for explicit triggers only.
func (c *Config) GetRefreshInterval() time.Duration {
	if c.RefreshInterval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d < 0 {
		return time.Hour
	}
	return d
}

// IsDemo returns true when running against the demo environment
func (c *Config) IsDemo() bool {
	return strings.ToLower(strings.TrimSpace(c.Mode)) == ModeDemo
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Mode:              ModeDemo,
		ReferenceCurrency: "GBP",
		RefreshInterval:   "1h",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Clients: ClientsConfig{
			Trading212: Trading212Config{
				BaseURL:     "https://live.trading212.com",
				DemoBaseURL: "https://demo.trading212.com",
				RateLimit:   1,
				Timeout:     "30s",
			},
			Frankfurter: FrankfurterConfig{
				BaseURL:   "https://api.frankfurter.app",
				RateLimit: 5,
				Timeout:   "15s",
			},
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 2,
				Timeout:   "30s",
			},
		},
		Rates: RatesConfig{
			MaxAge: "1h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalize(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if mode := os.Getenv("DIVFOLIO_MODE"); mode != "" {
		config.Mode = mode
	}

	if host := os.Getenv("DIVFOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("DIVFOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("DIVFOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if cur := os.Getenv("DIVFOLIO_REFERENCE_CURRENCY"); cur != "" {
		config.ReferenceCurrency = strings.ToUpper(cur)
	}

	if interval := os.Getenv("DIVFOLIO_REFRESH_INTERVAL"); interval != "" {
		config.RefreshInterval = interval
	}

	// T212_API_KEY matches the variable the Trading 212 docs use in examples
	for _, name := range []string{"DIVFOLIO_T212_API_KEY", "T212_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			config.Clients.Trading212.APIKey = key
			break
		}
	}
}

func normalize(config *Config) {
	config.Mode = strings.ToLower(strings.TrimSpace(config.Mode))
	if config.Mode != ModeLive && config.Mode != ModeDemo {
		config.Mode = ModeDemo
	}
	config.ReferenceCurrency = strings.ToUpper(strings.TrimSpace(config.ReferenceCurrency))
	if config.ReferenceCurrency == "" {
		config.ReferenceCurrency = "GBP"
	}
}
