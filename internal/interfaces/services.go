// Package interfaces defines service contracts for Divfolio
package interfaces

import (
	"context"

	"github.com/tobyrouse/divfolio/internal/models"
)

// CurrencyService converts amounts between currencies using a cached rate table
type CurrencyService interface {
	// RefreshRates refetches the full rate table, replacing the cache atomically
	RefreshRates(ctx context.Context) error

	// ConversionFactor returns the multiplier that converts an amount in
	// `from` to `to`. Refreshes the cache first when it is stale.
	ConversionFactor(ctx context.Context, from, to string) (float64, error)

	// ConversionFactorAllowStale is ConversionFactor, except a failed refresh
	// falls back to the last good table instead of failing.
	ConversionFactorAllowStale(ctx context.Context, from, to string) (float64, error)

	// Base returns the reference currency the rate table is held against
	Base() string

	// SetBase changes the reference currency. Changing the base invalidates
	// the cached table; the next conversion refetches against the new base.
	SetBase(base string)
}

// PortfolioService assembles enriched portfolio snapshots from raw broker data
type PortfolioService interface {
	// Assemble builds one currency-normalized, dividend-annotated snapshot.
	// Positions keep their input order; per-position enrichment failures
	// degrade only that position.
	Assemble(ctx context.Context, raw []models.RawPosition, meta []models.InstrumentMeta) (*models.Portfolio, error)
}

// PayoutService exposes historical dividend payout records from broker exports
type PayoutService interface {
	// GetPayoutSummary downloads (or reuses) the latest export and returns
	// parsed records with totals.
	GetPayoutSummary(ctx context.Context) (*models.PayoutSummary, error)
}

// SnapshotProvider exposes the current published portfolio snapshot.
// Implementations must be safe for concurrent readers.
type SnapshotProvider interface {
	// Snapshot returns the currently published portfolio
	Snapshot() models.Portfolio

	// TriggerRefresh requests an immediate refresh cycle without waiting for
	// the interval. Duplicate triggers while a cycle runs are coalesced.
	TriggerRefresh()
}
