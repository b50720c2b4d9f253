package models

import "time"

// QuoteFacts is the raw dividend-related facts for one symbol from the quote
// provider. Optional figures are pointers: absent data must stay
// distinguishable from zero.
type QuoteFacts struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency,omitempty"` // quote currency, e.g. "USD" or "GBp"

	TrailingRate  *float64 `json:"trailing_rate,omitempty"`  // annual dividend per share
	TrailingYield *float64 `json:"trailing_yield,omitempty"` // percent

	NextAmount  *float64        `json:"next_amount,omitempty"` // declared next payment per share
	NextExDate  *time.Time      `json:"next_ex_date,omitempty"`
	NextPayDate *time.Time      `json:"next_pay_date,omitempty"`
	History     []PaymentRecord `json:"history,omitempty"` // most recent payments, oldest first

	Updated time.Time `json:"updated,omitempty"`
}

// PayoutRecord is one row of the broker's historical dividend payout export.
type PayoutRecord struct {
	Date           time.Time `json:"date"`
	ISIN           string    `json:"isin"`
	Ticker         string    `json:"ticker"`
	Name           string    `json:"name"`
	Quantity       float64   `json:"quantity"`
	PricePerShare  float64   `json:"price_per_share"`
	Currency       string    `json:"currency"`
	Total          float64   `json:"total"`
	WithholdingTax float64   `json:"withholding_tax"`
	NetAmount      float64   `json:"net_amount"`
}

// PayoutSummary aggregates payout records for presentation.
type PayoutSummary struct {
	Records        []PayoutRecord  `json:"records"` // newest first
	TotalDividends float64         `json:"total_dividends"`
	TotalWHT       float64         `json:"total_wht"`
	TotalNet       float64         `json:"total_net"`
	ByTicker       []TickerPayouts `json:"by_ticker"` // largest total first
}

// TickerPayouts is the per-ticker payout rollup.
type TickerPayouts struct {
	Ticker string  `json:"ticker"`
	Total  float64 `json:"total"`
	WHT    float64 `json:"wht"`
	Net    float64 `json:"net"`
}
