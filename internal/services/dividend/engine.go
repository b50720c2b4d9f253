// Package dividend derives per-position dividend economics from quote facts.
// All computation is pure: no I/O and no currency conversion, since inputs
// arrive already normalized to the portfolio reference currency.
package dividend

import (
	"github.com/tobyrouse/divfolio/internal/models"
)

// historyDepth caps the retained payment history.
const historyDepth = 4

// Compute derives the annual dividend summary and next-payment prediction for
// one position. Either result may be nil: the summary requires a trailing rate
// or yield, the prediction's net figures require a declared next amount.
func Compute(pos models.Position, facts *models.QuoteFacts) (*models.DividendInfo, *models.DividendPrediction) {
	if facts == nil {
		return nil, nil
	}
	return computeInfo(pos, facts), computePrediction(pos, facts)
}

func computeInfo(pos models.Position, facts *models.QuoteFacts) *models.DividendInfo {
	var perShare float64
	switch {
	case facts.TrailingRate != nil:
		perShare = *facts.TrailingRate
	case facts.TrailingYield != nil:
		perShare = *facts.TrailingYield * pos.CurrentPrice / 100
	default:
		return nil
	}

	annualDividend := perShare * pos.Quantity
	annualWHT := annualDividend * pos.WithholdingTax / 100
	perShareAfterWHT := perShare * (100 - pos.WithholdingTax) / 100

	// Yields resolve to exactly 0 on a zero denominator, never NaN or Inf
	var dividendYield float64
	if pos.CurrentPrice != 0 {
		dividendYield = perShareAfterWHT / pos.CurrentPrice * 100
	}
	var yieldOnCost float64
	if pos.AveragePrice != 0 {
		yieldOnCost = perShareAfterWHT / pos.AveragePrice * 100
	}

	return &models.DividendInfo{
		Symbol:                 pos.Symbol,
		Quantity:               pos.Quantity,
		AvgPrice:               pos.AveragePrice,
		TotalInvestment:        pos.Quantity * pos.AveragePrice,
		AnnualDividendPerShare: perShare,
		AnnualDividend:         annualDividend,
		DividendYield:          dividendYield,
		YieldOnCost:            yieldOnCost,
		AnnualWHT:              annualWHT,
		AnnualIncomeAfterWHT:   annualDividend - annualWHT,
		CurrentInvestmentValue: pos.Quantity * pos.CurrentPrice,
	}
}

func computePrediction(pos models.Position, facts *models.QuoteFacts) *models.DividendPrediction {
	if facts.NextAmount == nil && facts.NextExDate == nil && facts.NextPayDate == nil && len(facts.History) == 0 {
		return nil
	}

	pred := &models.DividendPrediction{
		NextExDate:  facts.NextExDate,
		NextPayDate: facts.NextPayDate,
	}

	if n := len(facts.History); n > 0 {
		start := 0
		if n > historyDepth {
			start = n - historyDepth
		}
		pred.History = append([]models.PaymentRecord(nil), facts.History[start:]...)
	}

	// Net figures exist only when the upstream declares a forthcoming amount;
	// absent stays absent, never zero-filled
	if facts.NextAmount != nil {
		amount := *facts.NextAmount
		netPayment := amount * pos.Quantity
		netWHT := netPayment * pos.WithholdingTax / 100
		netAfter := netPayment - netWHT

		pred.PerShareAmount = &amount
		pred.NetPaymentAmount = &netPayment
		pred.NetWHT = &netWHT
		pred.NetPaymentAmountAfterWHT = &netAfter
	}

	return pred
}
