package models

import (
	"github.com/shopspring/decimal"
)

// TransactionRecord is one ledger row. It is built once by the row parser and never mutated afterwards.
type TransactionRecord struct {
	ID                      int64           `json:"id,omitempty"` // Database primary key, assigned on commit
	OwnerID                 int64           `json:"owner_id"`
	TradeDate               string          `json:"trade_date"` // YYYY-MM-DD
	TradeTime               string          `json:"trade_time"` // HH:MM
	InstrumentName          string          `json:"instrument_name"`
	InstrumentKey           string          `json:"instrument_key"` // ISIN or similar broker code
	Reference               string          `json:"reference"`
	Venue                   *string         `json:"venue"`
	Quantity                decimal.Decimal `json:"quantity"`
	PriceAmount             int64           `json:"price_amount"` // scale 4
	PriceCurrency           string          `json:"price_currency"`
	LocalValueAmount        int64           `json:"local_value_amount"` // minor units
	LocalValueCurrency      string          `json:"local_value_currency"`
	SettlementValueAmount   int64           `json:"settlement_value_amount"` // minor units, used for P/L
	SettlementValueCurrency string          `json:"settlement_value_currency"`
	ExchangeRate            *string         `json:"exchange_rate"` // kept verbatim
	FeeAmount               *int64          `json:"fee_amount"`
	FeeCurrency             *string         `json:"fee_currency"`
	TotalAmount             int64           `json:"total_amount"`
	TotalCurrency           string          `json:"total_currency"`
	OrderID                 *string         `json:"order_id"` // not unique across rows
	ContentFingerprint      string          `json:"content_fingerprint"`
}

// QuantityScale is the number of decimals kept when a quantity is persisted as an integer.
const QuantityScale = 10

// ScaledQuantity returns the quantity as an integer at QuantityScale decimals.
func (t TransactionRecord) ScaledQuantity() int64 {
	return t.Quantity.Shift(QuantityScale).Round(0).IntPart()
}

// QuantityFromScaled is the inverse of ScaledQuantity.
func QuantityFromScaled(v int64) decimal.Decimal {
	return decimal.New(v, -QuantityScale)
}
