package models

import "time"

// DividendInfo is the derived annual dividend summary for one position.
// All monetary figures are in the portfolio reference currency.
type DividendInfo struct {
	Symbol                 string  `json:"symbol"`
	Quantity               float64 `json:"quantity"`
	AvgPrice               float64 `json:"avg_price"`
	TotalInvestment        float64 `json:"total_investment"` // quantity * avg_price
	AnnualDividendPerShare float64 `json:"annual_dividend_per_share"`
	AnnualDividend         float64 `json:"annual_dividend"`
	DividendYield          float64 `json:"dividend_yield"` // percent, after WHT
	YieldOnCost            float64 `json:"yield_on_cost"`  // percent, after WHT
	AnnualWHT              float64 `json:"annual_wht"`
	AnnualIncomeAfterWHT   float64 `json:"annual_income_after_wht"`
	CurrentInvestmentValue float64 `json:"current_investment_value"` // quantity * current_price
}

// PaymentRecord is one historical dividend payment.
type PaymentRecord struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"` // per share
}

// DividendPrediction describes the next expected payment for one position.
// Pointer fields stay nil when the upstream provides no forthcoming amount;
// nil is distinct from a zero-amount payment.
type DividendPrediction struct {
	History     []PaymentRecord `json:"history,omitempty"` // last four payments
	NextExDate  *time.Time      `json:"next_ex_date,omitempty"`
	NextPayDate *time.Time      `json:"next_pay_date,omitempty"`

	PerShareAmount           *float64 `json:"per_share_amount,omitempty"`
	NetPaymentAmount         *float64 `json:"net_payment_amount,omitempty"`
	NetWHT                   *float64 `json:"net_wht,omitempty"`
	NetPaymentAmountAfterWHT *float64 `json:"net_payment_amount_after_wht,omitempty"`
}

// DividendSummary aggregates DividendInfo across the portfolio for the
// presentation layer.
type DividendSummary struct {
	TotalAnnualDividend float64        `json:"total_annual_dividend"`
	TotalAnnualWHT      float64        `json:"total_annual_wht"`
	TotalIncomeAfterWHT float64        `json:"total_income_after_wht"`
	Details             []DividendInfo `json:"details"`
}
