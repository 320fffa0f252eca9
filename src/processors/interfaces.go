package processors

import "github.com/username/trackfolio/backend/src/models"

// TransactionProcessor finalizes parsed records before they reach the ledger.
type TransactionProcessor interface {
	Process(rec models.TransactionRecord) models.TransactionRecord
}

// TradeSummaryProcessor folds closed-trade totals into one summary.
type TradeSummaryProcessor interface {
	Summarize(totals []models.ClosedTradeTotal) models.TradesSummary
}
