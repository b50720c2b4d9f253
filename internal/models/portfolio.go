// Package models defines data structures for Divfolio
package models

import (
	"time"
)

// RawPosition is one open position as reported by the broker, before any
// enrichment or currency normalization. Zero and negative quantity rows are
// filtered out by the broker client at ingestion.
type RawPosition struct {
	Ticker       string  `json:"ticker"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	CurrentPrice float64 `json:"currentPrice"`
	Currency     string  `json:"currencyCode,omitempty"`
	FXPPL        float64 `json:"fxPpl,omitempty"` // FX share of unrealized P/L, in account currency
}

// InstrumentMeta carries per-instrument metadata from the broker, keyed by
// broker ticker. Only the currency code is consumed by the assembler.
type InstrumentMeta struct {
	Ticker       string `json:"ticker"`
	CurrencyCode string `json:"currencyCode"`
}

// Position is one enriched, currency-normalized holding.
type Position struct {
	Ticker         string  `json:"ticker"`       // broker identifier
	Symbol         string  `json:"symbol"`       // resolved quote symbol
	Quantity       float64 `json:"quantity"`
	AveragePrice   float64 `json:"average_price"`
	CurrentPrice   float64 `json:"current_price"`
	Currency       string  `json:"currency"`
	Value          float64 `json:"value"` // quantity * current_price after normalization
	PPL            float64 `json:"ppl"`
	PPLPercent     float64 `json:"ppl_percent"`
	FXPPLPercent   float64 `json:"fx_ppl_percent,omitempty"` // FX-attributable share of ppl_percent
	WithholdingTax float64 `json:"withholding_tax"`          // percent, 0-100

	DividendInfo       *DividendInfo       `json:"dividend_info,omitempty"`
	DividendPrediction *DividendPrediction `json:"dividend_prediction,omitempty"`
}

// Portfolio is one complete snapshot of all holdings with rollups. A snapshot
// is immutable once published; each refresh cycle replaces it as a whole.
type Portfolio struct {
	Positions       []Position `json:"positions"`
	TotalValue      float64    `json:"total_value"`
	TotalCost       float64    `json:"total_cost"`
	TotalPPL        float64    `json:"total_ppl"`
	TotalPPLPercent float64    `json:"total_ppl_percent"`
	LastUpdated     time.Time  `json:"last_updated"`
	UpdateCount     uint64     `json:"update_count"`
	CycleID         string     `json:"cycle_id,omitempty"` // refresh cycle that produced this snapshot
}

// Recalculate recomputes the rollup totals from the positions. Order
// independent: pure sums plus a derived ratio.
func (p *Portfolio) Recalculate() {
	var totalValue, totalCost, totalPPL float64
	for _, pos := range p.Positions {
		totalValue += pos.Value
		totalCost += pos.Quantity * pos.AveragePrice
		totalPPL += pos.PPL
	}
	p.TotalValue = totalValue
	p.TotalCost = totalCost
	p.TotalPPL = totalPPL
	if totalCost != 0 {
		p.TotalPPLPercent = totalPPL / totalCost * 100
	} else {
		p.TotalPPLPercent = 0
	}
}
