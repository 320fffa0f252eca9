// backend/src/processors/transaction_processor.go
package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"github.com/username/trackfolio/backend/src/models"
)

type transactionProcessorImpl struct{}

func NewTransactionProcessor() TransactionProcessor { return &transactionProcessorImpl{} }

// Process stamps the content fingerprint. The input is returned as a new value.
func (p *transactionProcessorImpl) Process(rec models.TransactionRecord) models.TransactionRecord {
	rec.ContentFingerprint = GenerateFingerprint(rec)
	return rec
}

// GenerateFingerprint is the SHA-256 hex digest of every normalized field, owner first.
// Fields are length-prefixed so that no two distinct records share an encoding.
// Absent optional values encode as the empty string; a present zero encodes as "0".
func GenerateFingerprint(rec models.TransactionRecord) string {
	h := sha256.New()
	for _, f := range fingerprintFields(rec) {
		writeField(h, f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, f string) {
	fmt.Fprintf(h, "%d:%s|", len(f), f)
}

func fingerprintFields(rec models.TransactionRecord) []string {
	return []string{
		strconv.FormatInt(rec.OwnerID, 10),
		rec.TradeDate,
		rec.TradeTime,
		rec.InstrumentName,
		rec.InstrumentKey,
		rec.Reference,
		optString(rec.Venue),
		rec.Quantity.StringFixed(models.QuantityScale),
		strconv.FormatInt(rec.PriceAmount, 10),
		rec.PriceCurrency,
		strconv.FormatInt(rec.LocalValueAmount, 10),
		rec.LocalValueCurrency,
		strconv.FormatInt(rec.SettlementValueAmount, 10),
		rec.SettlementValueCurrency,
		optString(rec.ExchangeRate),
		optInt(rec.FeeAmount),
		optString(rec.FeeCurrency),
		strconv.FormatInt(rec.TotalAmount, 10),
		rec.TotalCurrency,
		optString(rec.OrderID),
	}
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
