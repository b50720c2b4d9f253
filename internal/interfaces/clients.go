// Package interfaces defines service contracts for Divfolio
package interfaces

import (
	"context"
	"time"

	"github.com/tobyrouse/divfolio/internal/models"
)

// BrokerClient provides access to the Trading 212 API
type BrokerClient interface {
	// GetOpenPositions retrieves all open positions. Rows with zero or
	// negative quantity are filtered out before returning.
	GetOpenPositions(ctx context.Context) ([]models.RawPosition, error)

	// GetInstrumentMetadata retrieves per-instrument metadata (currency codes)
	GetInstrumentMetadata(ctx context.Context) ([]models.InstrumentMeta, error)

	// RequestExport initiates a dividend history export for the given range
	RequestExport(ctx context.Context, from, to time.Time) (int64, error)

	// GetExportStatus polls the status of a previously requested export
	GetExportStatus(ctx context.Context, reportID int64) (*models.ExportStatus, error)

	// DownloadExport fetches the finished export CSV
	DownloadExport(ctx context.Context, downloadLink string) ([]byte, error)
}

// RatesClient fetches a full exchange-rate table against a base currency
type RatesClient interface {
	// GetLatestRates returns currency code -> rate against base. The base
	// currency itself is not guaranteed to appear in the map.
	GetLatestRates(ctx context.Context, base string) (map[string]float64, error)
}

// QuoteClient provides dividend-related quote facts per symbol
type QuoteClient interface {
	// GetQuoteFacts returns dividend facts for a symbol, or (nil, nil) when
	// the provider has no data for it.
	GetQuoteFacts(ctx context.Context, symbol string) (*models.QuoteFacts, error)
}
