// Package common provides shared utilities for Divfolio
package common

import (
	"sync"
	"time"
)

// Settings is the runtime-adjustable subset of configuration. The scheduler
// reads the effective settings at the start of every cycle, so an update is
// always observed by the next refresh.
type Settings struct {
	Mode              string        `json:"mode"`
	APIKey            string        `json:"api_key,omitempty"`
	ReferenceCurrency string        `json:"reference_currency"`
	RefreshInterval   time.Duration `json:"refresh_interval"`
}

// Settings derives the initial runtime settings from the loaded config.
func (c *Config) Settings() Settings {
	return Settings{
		Mode:              c.Mode,
		APIKey:            c.Clients.Trading212.APIKey,
		ReferenceCurrency: c.ReferenceCurrency,
		RefreshInterval:   c.GetRefreshInterval(),
	}
}

// SettingsStore guards the effective settings: one writer (the settings
// handler), many readers. The lock is held only to copy the value, never
// across I/O.
type SettingsStore struct {
	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore creates a store seeded with the given settings.
func NewSettingsStore(initial Settings) *SettingsStore {
	return &SettingsStore{current: initial}
}

// Current returns a copy of the effective settings.
func (s *SettingsStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the effective settings as a whole.
func (s *SettingsStore) Update(next Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
}
