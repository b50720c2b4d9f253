// Package app wires configuration, clients and services into one runnable
// application core.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tobyrouse/divfolio/internal/clients/frankfurter"
	"github.com/tobyrouse/divfolio/internal/clients/trading212"
	"github.com/tobyrouse/divfolio/internal/clients/yahoo"
	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/services/currency"
	"github.com/tobyrouse/divfolio/internal/services/payouts"
	"github.com/tobyrouse/divfolio/internal/services/portfolio"
	"github.com/tobyrouse/divfolio/internal/services/scheduler"
	"github.com/tobyrouse/divfolio/internal/symbols"
)

// App holds all initialized services and clients.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Settings         *common.SettingsStore
	BrokerClient     interfaces.BrokerClient
	RatesClient      interfaces.RatesClient
	QuoteClient      interfaces.QuoteClient
	CurrencyService  interfaces.CurrencyService
	PortfolioService interfaces.PortfolioService
	PayoutService    interfaces.PayoutService
	Scheduler        *scheduler.Scheduler
	StartupTime      time.Time

	schedulerCancel context.CancelFunc
	schedulerDone   sync.WaitGroup
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes all services and clients. configPath may be empty, in
// which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	// Load configuration - check provided path, DIVFOLIO_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("DIVFOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "divfolio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/divfolio.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)
	settings := common.NewSettingsStore(config.Settings())

	t212 := config.Clients.Trading212
	broker := trading212.NewClient(settings,
		trading212.WithBaseURLs(t212.BaseURL, t212.DemoBaseURL),
		trading212.WithRateLimit(t212.RateLimit),
		trading212.WithTimeout(t212.GetTimeout()),
		trading212.WithLogger(logger),
	)

	rates := frankfurter.NewClient(
		frankfurter.WithBaseURL(config.Clients.Frankfurter.BaseURL),
		frankfurter.WithRateLimit(config.Clients.Frankfurter.RateLimit),
		frankfurter.WithTimeout(config.Clients.Frankfurter.GetTimeout()),
		frankfurter.WithLogger(logger),
	)

	quotes := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
		yahoo.WithLogger(logger),
	)

	currencySvc := currency.NewService(rates, config.ReferenceCurrency, config.Rates.GetMaxAge(), logger)
	resolver := symbols.NewResolver(symbolOverrides(config))
	portfolioSvc := portfolio.NewService(resolver, currencySvc, quotes, logger)
	payoutSvc := payouts.NewService(broker, logger)
	sched := scheduler.New(broker, portfolioSvc, currencySvc, settings, logger)

	app := &App{
		Config:           config,
		Logger:           logger,
		Settings:         settings,
		BrokerClient:     broker,
		RatesClient:      rates,
		QuoteClient:      quotes,
		CurrencyService:  currencySvc,
		PortfolioService: portfolioSvc,
		PayoutService:    payoutSvc,
		Scheduler:        sched,
		StartupTime:      time.Now(),
	}

	logger.Info().
		Str("mode", config.Mode).
		Str("reference_currency", config.ReferenceCurrency).
		Str("config", configPath).
		Msg("Divfolio initialized")

	return app, nil
}

// symbolOverrides converts config symbol overrides to resolver entries.
func symbolOverrides(config *common.Config) map[string]symbols.Resolution {
	overrides := make(map[string]symbols.Resolution, len(config.Symbols))
	for ticker, o := range config.Symbols {
		overrides[ticker] = symbols.Resolution{
			Symbol:         o.Symbol,
			WithholdingTax: o.WithholdingTax,
		}
	}
	return overrides
}

// StartScheduler launches the refresh loop in the background.
func (a *App) StartScheduler() {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	a.schedulerDone.Add(1)
	go func() {
		defer a.schedulerDone.Done()
		a.Scheduler.Run(ctx)
	}()
}

// Close stops background work and waits for it to finish.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerDone.Wait()
	}
}
