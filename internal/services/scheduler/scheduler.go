// Package scheduler drives periodic portfolio refresh cycles and publishes
// the resulting snapshots to concurrent readers.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
	"github.com/tobyrouse/divfolio/internal/models"
)

// Scheduler alternates between waiting (on an interval timer or a manual
// trigger) and running a refresh cycle. A failed cycle leaves the previously
// published snapshot untouched.
type Scheduler struct {
	broker    interfaces.BrokerClient
	assembler interfaces.PortfolioService
	currency  interfaces.CurrencyService
	settings  *common.SettingsStore
	logger    *common.Logger
	now       func() time.Time

	// trigger has capacity one so refresh requests arriving while a cycle is
	// already pending collapse into a single extra cycle
	trigger chan struct{}

	mu      sync.RWMutex
	current models.Portfolio
}

// New creates a scheduler. Nothing runs until Run is called; Snapshot returns
// an empty portfolio until the first successful cycle publishes.
func New(broker interfaces.BrokerClient, assembler interfaces.PortfolioService, currency interfaces.CurrencyService, settings *common.SettingsStore, logger *common.Logger) *Scheduler {
	return &Scheduler{
		broker:    broker,
		assembler: assembler,
		currency:  currency,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
		current:   models.Portfolio{Positions: []models.Position{}},
	}
}

// Snapshot returns the currently published portfolio. Snapshots are immutable
// once published, so the value is safe to read without further locking.
func (s *Scheduler) Snapshot() models.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// TriggerRefresh requests an immediate cycle. Requests made while one is
// already queued are coalesced; the call never blocks.
func (s *Scheduler) TriggerRefresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes the refresh loop until ctx is cancelled. One cycle runs
// immediately on startup; afterwards the loop waits for the configured
// interval or a manual trigger, whichever comes first. A zero interval
// disables the timer so cycles run on triggers only.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.settings.Current().RefreshInterval).
		Msg("Refresh scheduler started")

	s.runCycle(ctx)

	for {
		// Re-read the interval each pass so settings changes apply without a restart
		interval := s.settings.Current().RefreshInterval

		var timer *time.Timer
		var timerC <-chan time.Time
		if interval > 0 {
			timer = time.NewTimer(interval)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info().Msg("Refresh scheduler stopped")
			return
		case <-timerC:
		case <-s.trigger:
			if timer != nil {
				timer.Stop()
			}
			s.logger.Debug().Msg("Manual refresh requested")
		}

		s.runCycle(ctx)
	}
}

// runCycle fetches broker state, assembles a snapshot and publishes it. Any
// failure logs and returns without publishing.
func (s *Scheduler) runCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	start := s.now()
	log := s.logger.With().Str("cycle_id", cycleID).Logger()

	settings := s.settings.Current()
	s.currency.SetBase(settings.ReferenceCurrency)

	raw, err := s.broker.GetOpenPositions(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrMissingCredential) {
			log.Error().Msg("Refresh skipped: broker API key is not configured")
		} else {
			log.Warn().Err(err).Msg("Fetching positions failed, keeping previous snapshot")
		}
		return
	}

	meta, err := s.broker.GetInstrumentMetadata(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Fetching instrument metadata failed, keeping previous snapshot")
		return
	}

	portfolio, err := s.assembler.Assemble(ctx, raw, meta)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot assembly failed, keeping previous snapshot")
		return
	}

	s.publish(portfolio, cycleID)

	log.Info().
		Int("positions", len(portfolio.Positions)).
		Str("currency", settings.ReferenceCurrency).
		Dur("duration", s.now().Sub(start)).
		Msg("Portfolio snapshot published")
}

// publish swaps the snapshot in under the write lock, carrying the update
// counter forward so readers can tell successive snapshots apart.
func (s *Scheduler) publish(portfolio *models.Portfolio, cycleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	portfolio.UpdateCount = s.current.UpdateCount + 1
	portfolio.CycleID = cycleID
	s.current = *portfolio
}

// Ensure Scheduler implements SnapshotProvider
var _ interfaces.SnapshotProvider = (*Scheduler)(nil)
