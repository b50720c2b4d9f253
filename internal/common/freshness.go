// Package common provides shared utilities for Divfolio
package common

import "time"

// Freshness TTLs for cached upstream data
const (
	FreshnessRates      = 1 * time.Hour      // exchange-rate table
	FreshnessQuoteFacts = 6 * time.Hour      // trailing dividend facts per symbol
	FreshnessExport     = 24 * time.Hour     // broker dividend payout export
	FreshnessMetadata   = 7 * 24 * time.Hour // instrument metadata changes rarely
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
