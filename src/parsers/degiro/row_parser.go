package degiro

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/username/trackfolio/backend/src/currency"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/processors"
	"github.com/username/trackfolio/backend/src/security/validation"
)

var (
	ErrIncompleteRow = errors.New("required field missing")
	ErrInvalidRow    = errors.New("unparsable field")
)

// RowParser turns one raw record into a fingerprinted TransactionRecord.
type RowParser struct {
	schema    Schema
	processor processors.TransactionProcessor
}

func NewRowParser(schema Schema, processor processors.TransactionProcessor) *RowParser {
	return &RowParser{schema: schema, processor: processor}
}

// Parse never panics on bad input; it reports ErrIncompleteRow when a required field is
// blank and ErrInvalidRow when a present field cannot be interpreted.
func (p *RowParser) Parse(record []string, ownerID int64) (models.TransactionRecord, error) {
	if len(record) > p.schema.ColumnCount {
		return models.TransactionRecord{}, fmt.Errorf("%w: expected %d columns, found %d", ErrInvalidRow, p.schema.ColumnCount, len(record))
	}

	field := func(col int) string { return cleanField(record, col) }
	for _, col := range requiredColumns {
		if field(col) == "" {
			return models.TransactionRecord{}, fmt.Errorf("%w: %s", ErrIncompleteRow, columnNames[col])
		}
	}

	rec := models.TransactionRecord{OwnerID: ownerID}

	tradeDate, err := time.Parse("02-01-2006", field(ColDate))
	if err != nil {
		return invalidField(ColDate, err)
	}
	rec.TradeDate = tradeDate.Format("2006-01-02")

	if err := validation.ValidateTimeString(field(ColTime)); err != nil {
		return invalidField(ColTime, err)
	}
	rec.TradeTime = field(ColTime)

	// Free text is stored as exported; rendering sanitizes it.
	rec.InstrumentName = field(ColProduct)
	rec.Reference = field(ColReference)
	rec.InstrumentKey = field(ColISIN)
	if err := validation.ValidateStringMinLength(rec.InstrumentKey, p.schema.MinInstrumentKeyLength, "ISIN"); err != nil {
		return invalidField(ColISIN, err)
	}
	if venue := field(ColVenue); venue != "" {
		rec.Venue = &venue
	}

	rec.Quantity, err = currency.ParseDecimal(field(ColQuantity))
	if err != nil {
		return invalidField(ColQuantity, err)
	}
	if _, err := currency.ToScaled(rec.Quantity, currency.ScaleQuantity); err != nil {
		return invalidField(ColQuantity, err)
	}

	amounts := []struct {
		col   int
		scale int32
		dst   *int64
	}{
		{ColPrice, currency.ScalePrice, &rec.PriceAmount},
		{ColLocalValue, currency.ScaleMinor, &rec.LocalValueAmount},
		{ColValue, currency.ScaleMinor, &rec.SettlementValueAmount},
		{ColTotal, currency.ScaleMinor, &rec.TotalAmount},
	}
	for _, a := range amounts {
		if *a.dst, err = currency.Normalize(field(a.col), a.scale); err != nil {
			return invalidField(a.col, err)
		}
	}

	codes := []struct {
		col int
		dst *string
	}{
		{ColPriceCurrency, &rec.PriceCurrency},
		{ColLocalValueCurrency, &rec.LocalValueCurrency},
		{ColValueCurrency, &rec.SettlementValueCurrency},
		{ColTotalCurrency, &rec.TotalCurrency},
	}
	for _, c := range codes {
		if *c.dst, err = p.currencyCode(field(c.col)); err != nil {
			return invalidField(c.col, err)
		}
	}

	if rate := field(ColExchangeRate); rate != "" {
		rec.ExchangeRate = &rate
	}

	fee, feeCurrency := field(ColFee), field(ColFeeCurrency)
	switch {
	case fee != "" && feeCurrency == "":
		return models.TransactionRecord{}, fmt.Errorf("%w: %s", ErrIncompleteRow, columnNames[ColFeeCurrency])
	case fee == "" && feeCurrency != "":
		return models.TransactionRecord{}, fmt.Errorf("%w: %s", ErrIncompleteRow, columnNames[ColFee])
	case fee != "":
		feeAmount, err := currency.Normalize(fee, currency.ScaleMinor)
		if err != nil {
			return invalidField(ColFee, err)
		}
		code, err := p.currencyCode(feeCurrency)
		if err != nil {
			return invalidField(ColFeeCurrency, err)
		}
		rec.FeeAmount, rec.FeeCurrency = &feeAmount, &code
	}

	if orderID := field(ColOrderID); orderID != "" {
		rec.OrderID = &orderID
	}

	return p.processor.Process(rec), nil
}

var requiredColumns = []int{
	ColDate, ColTime, ColProduct, ColISIN, ColReference, ColQuantity,
	ColPrice, ColPriceCurrency, ColLocalValue, ColLocalValueCurrency,
	ColValue, ColValueCurrency, ColTotal, ColTotalCurrency,
}

func (p *RowParser) currencyCode(raw string) (string, error) {
	code := strings.ToUpper(raw)
	if err := validation.ValidateCurrencyCode(code, p.schema.AllowedCurrencies); err != nil {
		return "", err
	}
	return code, nil
}

func invalidField(col int, err error) (models.TransactionRecord, error) {
	return models.TransactionRecord{}, fmt.Errorf("%w: %s: %v", ErrInvalidRow, columnNames[col], err)
}
