// Package degiro validates and parses DeGiro "Transactions" CSV exports.
package degiro

import (
	"fmt"

	"github.com/username/trackfolio/backend/src/security/validation"
)

// Column positions in a DeGiro transactions export.
const (
	ColDate = iota
	ColTime
	ColProduct
	ColISIN
	ColReference
	ColVenue
	ColQuantity
	ColPrice
	ColPriceCurrency
	ColLocalValue
	ColLocalValueCurrency
	ColValue
	ColValueCurrency
	ColExchangeRate
	ColFee
	ColFeeCurrency
	ColTotal
	ColTotalCurrency
	ColOrderID
	columnCount
)

var columnNames = [columnCount]string{
	"Date", "Time", "Product", "ISIN", "Reference", "Venue", "Quantity", "Price", "Price Currency",
	"Local value", "Local value Currency", "Value", "Value Currency", "Exchange rate",
	"Transaction and/or third", "Transaction Currency", "Total", "Total Currency", "Order ID",
}

// DefaultCurrencies is the whitelist used when no configuration is supplied.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "NZD", "HKD"}

// Schema is the per-deployment configuration shared by the validator and the row parser.
type Schema struct {
	ColumnCount            int
	AllowedCurrencies      validation.CurrencySet
	MinInstrumentKeyLength int
}

// NewSchema builds the DeGiro layout with the given currency whitelist.
func NewSchema(currencies []string) Schema {
	return Schema{
		ColumnCount:            columnCount,
		AllowedCurrencies:      validation.NewCurrencySet(currencies),
		MinInstrumentKeyLength: 6,
	}
}

func DefaultSchema() Schema {
	return NewSchema(DefaultCurrencies)
}

// columnLabel renders the 1-based column reference used in diagnostics, e.g. "column 4 (ISIN)".
func columnLabel(col int) string {
	return fmt.Sprintf("column %d (%s)", col+1, columnNames[col])
}
