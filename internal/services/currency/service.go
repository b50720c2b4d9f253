// Package currency maintains a cached exchange-rate table and computes
// pairwise conversion factors against it.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/interfaces"
)

// ErrRateNotAvailable is returned when a currency is missing from the table.
var ErrRateNotAvailable = errors.New("conversion rate not available")

// minorUnit describes a currency quoted in a sub-unit of its major currency.
// Matched on the exact upstream code: "GBp" and "GBP" are different currencies.
type minorUnit struct {
	Major string
	Scale float64 // minor units per major unit
}

var minorUnits = map[string]minorUnit{
	"GBp": {Major: "GBP", Scale: 100}, // pence, Yahoo style
	"GBX": {Major: "GBP", Scale: 100}, // pence, LSE style
	"ZAc": {Major: "ZAR", Scale: 100}, // South African cents
	"ILA": {Major: "ILS", Scale: 100}, // Israeli agorot
}

// MinorUnit reports whether code is a minor-unit variant, and of which major
// currency at what scale.
func MinorUnit(code string) (major string, scale float64, ok bool) {
	mu, ok := minorUnits[code]
	if !ok {
		return "", 0, false
	}
	return mu.Major, mu.Scale, true
}

// Service implements CurrencyService. The rate table and its timestamp are one
// shared resource behind a read-write lock; fetches are serialized by a
// separate mutex so readers never wait on the network.
type Service struct {
	client interfaces.RatesClient
	logger *common.Logger
	maxAge time.Duration
	now    func() time.Time // injectable clock for testing

	refreshMu sync.Mutex // at most one in-flight fetch

	mu      sync.RWMutex
	base    string // reference currency, always maps to 1.0
	rates   map[string]float64
	fetched time.Time
}

// NewService creates a currency service for the given reference currency.
func NewService(client interfaces.RatesClient, base string, maxAge time.Duration, logger *common.Logger) *Service {
	return &Service{
		client: client,
		logger: logger,
		base:   strings.ToUpper(base),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Base returns the reference currency.
func (s *Service) Base() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// SetBase switches to a new reference currency, discarding the cached table.
// The next conversion fetches rates against the new base.
func (s *Service) SetBase(base string) {
	base = strings.ToUpper(base)

	s.mu.Lock()
	defer s.mu.Unlock()
	if base == s.base {
		return
	}
	s.logger.Info().Str("from", s.base).Str("to", base).Msg("Reference currency changed, invalidating rate cache")
	s.base = base
	s.rates = nil
	s.fetched = time.Time{}
}

// RefreshRates fetches a full rate table and swaps it in atomically. Callers
// that race a refresh already in flight reuse its result instead of fetching
// again.
func (s *Service) RefreshRates(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the fetch lock
	if s.isFresh() {
		return nil
	}
	return s.fetch(ctx)
}

// fetch retrieves the table and publishes it. Caller must hold refreshMu.
func (s *Service) fetch(ctx context.Context) error {
	base := s.Base()

	fetched, err := s.client.GetLatestRates(ctx, base)
	if err != nil {
		return fmt.Errorf("fetching rates for %s: %w", base, err)
	}

	table := make(map[string]float64, len(fetched)+1)
	for code, rate := range fetched {
		table[strings.ToUpper(code)] = rate
	}
	table[base] = 1.0

	s.mu.Lock()
	if s.base == base { // drop the result if the base changed mid-fetch
		s.rates = table
		s.fetched = s.now()
	}
	s.mu.Unlock()

	s.logger.Debug().
		Str("base", base).
		Int("currencies", len(table)).
		Msg("Exchange rates refreshed")
	return nil
}

// ConversionFactor returns the multiplier converting `from` amounts into `to`.
// Stale caches are refreshed first; a refresh failure is propagated.
func (s *Service) ConversionFactor(ctx context.Context, from, to string) (float64, error) {
	return s.factor(ctx, from, to, true)
}

// ConversionFactorAllowStale behaves like ConversionFactor but serves the last
// good table when a refresh attempt fails. Only a missing table is fatal.
func (s *Service) ConversionFactorAllowStale(ctx context.Context, from, to string) (float64, error) {
	return s.factor(ctx, from, to, false)
}

func (s *Service) factor(ctx context.Context, from, to string, enforceFresh bool) (float64, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)

	// Identity conversion touches neither cache nor network
	if from == to {
		return 1.0, nil
	}

	if !s.isFresh() {
		if err := s.RefreshRates(ctx); err != nil {
			if enforceFresh || !s.hasTable() {
				return 0, err
			}
			s.logger.Warn().Err(err).Msg("Rate refresh failed, serving last good table")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fromRate, ok := s.rates[from]
	if !ok || fromRate == 0 {
		return 0, fmt.Errorf("%w: %s", ErrRateNotAvailable, from)
	}
	toRate, ok := s.rates[to]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateNotAvailable, to)
	}

	return toRate / fromRate, nil
}

func (s *Service) isFresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.fetched.IsZero() && s.now().Sub(s.fetched) < s.maxAge
}

func (s *Service) hasTable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates != nil
}

// Ensure Service implements CurrencyService
var _ interfaces.CurrencyService = (*Service)(nil)
