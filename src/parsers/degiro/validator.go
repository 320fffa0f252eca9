package degiro

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/security/validation"
)

// Validator screens a whole export before anything is parsed or stored.
// Every row is checked and every problem is reported, in file order.
type Validator struct {
	schema Schema
}

func NewValidator(schema Schema) *Validator {
	return &Validator{schema: schema}
}

// Validate never fails outright: read problems are reported as diagnostics.
func (v *Validator) Validate(r io.Reader) models.ValidationResult {
	header, rows, err := ReadRows(r)
	if errors.Is(err, ErrEmptyFile) {
		return invalid([]models.Diagnostic{{Message: ErrEmptyFile.Error()}})
	}

	var diags []models.Diagnostic
	if header != nil && len(header) != v.schema.ColumnCount {
		diags = append(diags, models.Diagnostic{
			Line:    1,
			Message: fmt.Sprintf("Header row has %d columns, expected %d columns", len(header), v.schema.ColumnCount),
		})
	}

	for _, row := range rows {
		diags = append(diags, v.validateRow(row)...)
	}

	if err != nil {
		diags = append(diags, readErrorDiagnostic(err))
	}

	if len(diags) > 0 {
		logger.L.Debug("CSV validation failed", "diagnostics", len(diags), "rows", len(rows))
		return invalid(diags)
	}
	return models.ValidationResult{Valid: true, Errors: []models.Diagnostic{}}
}

func invalid(diags []models.Diagnostic) models.ValidationResult {
	return models.ValidationResult{Valid: false, Errors: diags}
}

func readErrorDiagnostic(err error) models.Diagnostic {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return models.Diagnostic{
			Line:    parseErr.StartLine,
			Message: fmt.Sprintf("Malformed CSV record: %v. Remaining lines were not checked.", parseErr.Err),
		}
	}
	return models.Diagnostic{Message: fmt.Sprintf("Unable to read CSV file: %v", err)}
}

// validateRow reports one diagnostic per failing column. A row with the wrong
// arity gets a single diagnostic and no field checks.
func (v *Validator) validateRow(row Row) []models.Diagnostic {
	if len(row.Fields) != v.schema.ColumnCount {
		return []models.Diagnostic{{
			Line:    row.Line,
			Message: fmt.Sprintf("Expected %d columns, found %d", v.schema.ColumnCount, len(row.Fields)),
		}}
	}

	var diags []models.Diagnostic
	fail := func(col int, err error) {
		if err != nil {
			diags = append(diags, models.Diagnostic{Line: row.Line, Column: columnLabel(col), Message: err.Error()})
		}
	}
	field := func(col int) string { return cleanField(row.Fields, col) }

	if date := field(ColDate); date == "" {
		fail(ColDate, validation.ValidateStringNotEmpty(date, "Date"))
	} else {
		_, err := validation.ValidateDateString(date)
		fail(ColDate, err)
	}

	if t := field(ColTime); t == "" {
		fail(ColTime, validation.ValidateStringNotEmpty(t, "Time"))
	} else {
		fail(ColTime, validation.ValidateTimeString(t))
	}

	fail(ColProduct, validation.ValidateStringNotEmpty(field(ColProduct), "Product name"))

	if isin := field(ColISIN); isin == "" {
		fail(ColISIN, validation.ValidateStringNotEmpty(isin, "ISIN"))
	} else {
		fail(ColISIN, validation.ValidateStringMinLength(isin, v.schema.MinInstrumentKeyLength, "ISIN"))
	}

	fail(ColReference, validation.ValidateStringNotEmpty(field(ColReference), "Reference"))

	if qty := field(ColQuantity); qty == "" {
		fail(ColQuantity, validation.ValidateStringNotEmpty(qty, "Quantity"))
	} else {
		fail(ColQuantity, validation.ValidateQuantityString(qty, "Quantity"))
	}

	v.checkMoney(field(ColPrice), "Price", "price format", func(err error) { fail(ColPrice, err) })
	v.checkCurrency(field(ColPriceCurrency), "Price currency", func(err error) { fail(ColPriceCurrency, err) })
	v.checkMoney(field(ColLocalValue), "Local value", "format", func(err error) { fail(ColLocalValue, err) })
	v.checkCurrency(field(ColLocalValueCurrency), "Local value currency", func(err error) { fail(ColLocalValueCurrency, err) })
	v.checkMoney(field(ColValue), "Value", "format", func(err error) { fail(ColValue, err) })
	v.checkCurrency(field(ColValueCurrency), "Value currency", func(err error) { fail(ColValueCurrency, err) })

	fee, feeCurrency := field(ColFee), field(ColFeeCurrency)
	switch {
	case fee != "":
		fail(ColFee, validation.ValidateMoneyString(fee, "format"))
		if feeCurrency == "" {
			fail(ColFeeCurrency, errors.New("Transaction currency is required when transaction and/or third is provided."))
		} else {
			fail(ColFeeCurrency, validation.ValidateCurrencyCode(feeCurrency, v.schema.AllowedCurrencies))
		}
	case feeCurrency != "":
		fail(ColFee, fmt.Errorf("Transaction and/or third is required when a transaction currency is provided. Value: '%s'.", feeCurrency))
	}

	v.checkMoney(field(ColTotal), "Total", "format", func(err error) { fail(ColTotal, err) })
	v.checkCurrency(field(ColTotalCurrency), "Total currency", func(err error) { fail(ColTotalCurrency, err) })

	// Exchange rate and order ID are optional and free-form.
	return diags
}

func (v *Validator) checkMoney(value, label, what string, report func(error)) {
	if value == "" {
		report(validation.ValidateStringNotEmpty(value, label))
		return
	}
	report(validation.ValidateMoneyString(value, what))
}

func (v *Validator) checkCurrency(value, label string, report func(error)) {
	if value == "" {
		report(validation.ValidateStringNotEmpty(value, label))
		return
	}
	report(validation.ValidateCurrencyCode(value, v.schema.AllowedCurrencies))
}
