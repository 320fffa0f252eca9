package processors

import (
	"github.com/username/trackfolio/backend/src/models"
)

type tradeSummaryProcessorImpl struct {
	baseCurrency string
}

// NewTradeSummaryProcessor reports sums in baseCurrency unless a closed trade settles in another one.
func NewTradeSummaryProcessor(baseCurrency string) TradeSummaryProcessor {
	return &tradeSummaryProcessorImpl{baseCurrency: baseCurrency}
}

// Summarize expects totals ordered by instrument key; the first currency that differs from the
// base currency in that order is the one reported. Amounts are never converted.
func (p *tradeSummaryProcessorImpl) Summarize(totals []models.ClosedTradeTotal) models.TradesSummary {
	summary := models.TradesSummary{Currency: p.baseCurrency, TradeCount: len(totals)}
	currencyPicked := false

	for _, t := range totals {
		if t.ProfitLoss > 0 {
			summary.PositiveSum += t.ProfitLoss
		} else if t.ProfitLoss < 0 {
			summary.NegativeSum += -t.ProfitLoss
		}
		if !currencyPicked && t.Currency != "" && t.Currency != p.baseCurrency {
			summary.Currency = t.Currency
			currencyPicked = true
		}
	}

	summary.Difference = summary.PositiveSum - summary.NegativeSum
	return summary
}
