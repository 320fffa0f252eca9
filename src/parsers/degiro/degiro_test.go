package degiro

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/processors"
)

var testHeader = []string{
	"Date", "Time", "Product", "ISIN", "Reference", "Venue", "Quantity", "Price", "",
	"Local value", "", "Value", "", "Exchange rate", "Transaction and/or third", "", "Total", "", "Order ID",
}

func buyRow() []string {
	return []string{
		"15-03-2024", "15:32", "APPLE INC", "US0378331005", "NDQ", "XNAS", "10", "153,2600", "USD",
		"-1532,60", "USD", "-1412,55", "EUR", "1,0850", "-2,00", "EUR", "-1414,55", "EUR",
		"a1b2c3d4-0000-0000-0000-000000000001",
	}
}

func withField(row []string, col int, value string) []string {
	out := append([]string(nil), row...)
	out[col] = value
	return out
}

func csvFile(t *testing.T, rows ...[]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(testHeader))
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return &buf
}

func TestValidateValidFile(t *testing.T) {
	sell := withField(withField(buyRow(), ColQuantity, "-10"), ColDate, "20-03-2024")
	cash := withField(withField(buyRow(), ColQuantity, "0"), ColFee, "")
	cash = withField(cash, ColFeeCurrency, "")
	cash = withField(cash, ColExchangeRate, "")
	cash = withField(cash, ColOrderID, "")

	result := NewValidator(DefaultSchema()).Validate(csvFile(t, buyRow(), sell, cash))
	assert.True(t, result.Valid, result.Messages())
	assert.Empty(t, result.Errors)
}

func TestValidateWrongArityRowReportsOnce(t *testing.T) {
	rows := [][]string{buyRow(), buyRow(), withField(buyRow(), ColDate, "31-02-2024"), buyRow(), buyRow(), buyRow()}
	short := buyRow()[:18]
	short[ColDate] = "not a date" // must not be reported: arity check wins
	rows = append(rows, short)

	result := NewValidator(DefaultSchema()).Validate(csvFile(t, rows...))
	require.False(t, result.Valid)

	var line8 []models.Diagnostic
	for _, d := range result.Errors {
		if d.Line == 8 {
			line8 = append(line8, d)
		}
	}
	require.Len(t, line8, 1)
	assert.Equal(t, "Line 8: Expected 19 columns, found 18", line8[0].String())

	require.Len(t, result.Errors, 2, "the bad date on line 4 is still reported")
	assert.Equal(t, "Line 4, column 1 (Date): Invalid date format. Expected DD-MM-YYYY format. Value: '31-02-2024'.", result.Errors[0].String())
}

func TestValidateCollectsEveryProblemInRow(t *testing.T) {
	bad := buyRow()
	bad[ColTime] = "25:00"
	bad[ColProduct] = "  "
	bad[ColISIN] = "US12"
	bad[ColPrice] = "153.26"
	bad[ColPriceCurrency] = "SEK"
	bad[ColTotalCurrency] = ""

	result := NewValidator(DefaultSchema()).Validate(csvFile(t, bad))
	require.False(t, result.Valid)
	assert.Equal(t, []string{
		"Line 2, column 2 (Time): Invalid time format. Expected HH:MM format. Value: '25:00'.",
		"Line 2, column 3 (Product): Product name is required.",
		"Line 2, column 4 (ISIN): ISIN must be at least 6 characters long. Value: 'US12' (length: 4).",
		"Line 2, column 8 (Price): Invalid price format. Expected numeric value with comma as decimal separator. Value: '153.26'.",
		"Line 2, column 9 (Price Currency): Invalid currency code. Value: 'SEK'.",
		"Line 2, column 18 (Total Currency): Total currency is required.",
	}, result.Messages())
}

func TestValidateFeePairing(t *testing.T) {
	noCurrency := withField(buyRow(), ColFeeCurrency, "")
	noAmount := withField(buyRow(), ColFee, "")
	neither := withField(noAmount, ColFeeCurrency, "")

	result := NewValidator(DefaultSchema()).Validate(csvFile(t, noCurrency, noAmount, neither))
	assert.Equal(t, []string{
		"Line 2, column 16 (Transaction Currency): Transaction currency is required when transaction and/or third is provided.",
		"Line 3, column 15 (Transaction and/or third): Transaction and/or third is required when a transaction currency is provided. Value: 'EUR'.",
	}, result.Messages())
}

func TestValidateHeaderAndEmptyFile(t *testing.T) {
	v := NewValidator(DefaultSchema())

	result := v.Validate(strings.NewReader(""))
	assert.Equal(t, []string{"CSV file is empty or invalid"}, result.Messages())

	result = v.Validate(strings.NewReader("Date,Time,Product\n"))
	assert.Equal(t, []string{"Line 1: Header row has 3 columns, expected 19 columns"}, result.Messages())
}

func TestValidateSkipsBlankRowsAndBOM(t *testing.T) {
	buf := csvFile(t, []string{"", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", ""}, buyRow())
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, buf.Bytes()...)
	withBOM = append(withBOM, []byte("\n\n\"\",\"\"\n")...)

	result := NewValidator(DefaultSchema()).Validate(bytes.NewReader(withBOM))
	assert.True(t, result.Valid, result.Messages())
}

func TestValidateMalformedCSV(t *testing.T) {
	buf := csvFile(t, buyRow())
	buf.WriteString("15-03-2024,\"15:32,broken\n")

	result := NewValidator(DefaultSchema()).Validate(buf)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Contains(t, result.Errors[0].Message, "Malformed CSV record")
}

func TestValidateUsesConfiguredCurrencies(t *testing.T) {
	row := withField(buyRow(), ColPriceCurrency, "sek")
	row = withField(row, ColLocalValueCurrency, "SEK")

	assert.False(t, NewValidator(DefaultSchema()).Validate(csvFile(t, row)).Valid)
	custom := NewSchema(append([]string{"SEK"}, DefaultCurrencies...))
	assert.True(t, NewValidator(custom).Validate(csvFile(t, row)).Valid)
}

func newTestParser() *RowParser {
	return NewRowParser(DefaultSchema(), processors.NewTransactionProcessor())
}

func TestParseRow(t *testing.T) {
	raw := withField(buyRow(), ColProduct, ` "ISHARES CORE S&P 500" `)
	rec, err := newTestParser().Parse(raw, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), rec.OwnerID)
	assert.Equal(t, "2024-03-15", rec.TradeDate)
	assert.Equal(t, "15:32", rec.TradeTime)
	assert.Equal(t, "ISHARES CORE S&P 500", rec.InstrumentName)
	assert.Equal(t, "US0378331005", rec.InstrumentKey)
	assert.Equal(t, "10", rec.Quantity.String())
	assert.Equal(t, int64(1532600), rec.PriceAmount)
	assert.Equal(t, int64(-153260), rec.LocalValueAmount)
	assert.Equal(t, int64(-141255), rec.SettlementValueAmount)
	assert.Equal(t, "EUR", rec.SettlementValueCurrency)
	require.NotNil(t, rec.ExchangeRate)
	assert.Equal(t, "1,0850", *rec.ExchangeRate)
	require.NotNil(t, rec.FeeAmount)
	assert.Equal(t, int64(-200), *rec.FeeAmount)
	assert.Equal(t, int64(-141455), rec.TotalAmount)
	require.NotNil(t, rec.OrderID)
	assert.Equal(t, processors.GenerateFingerprint(rec), rec.ContentFingerprint)
}

func TestParseOptionalFieldsAbsent(t *testing.T) {
	raw := buyRow()
	for _, col := range []int{ColVenue, ColExchangeRate, ColFee, ColFeeCurrency, ColOrderID} {
		raw[col] = ""
	}
	raw[ColQuantity] = "0,004727"
	raw[ColPriceCurrency] = "usd"

	rec, err := newTestParser().Parse(raw, 1)
	require.NoError(t, err)
	assert.Nil(t, rec.Venue)
	assert.Nil(t, rec.ExchangeRate)
	assert.Nil(t, rec.FeeAmount)
	assert.Nil(t, rec.FeeCurrency)
	assert.Nil(t, rec.OrderID)
	assert.Equal(t, "USD", rec.PriceCurrency)
	assert.Equal(t, int64(47270000), rec.ScaledQuantity())
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	p := newTestParser()
	for _, col := range requiredColumns {
		_, err := p.Parse(withField(buyRow(), col, " "), 1)
		assert.ErrorIs(t, err, ErrIncompleteRow, columnNames[col])
	}

	_, err := p.Parse(buyRow()[:12], 1)
	assert.ErrorIs(t, err, ErrIncompleteRow)

	_, err = p.Parse(withField(buyRow(), ColProduct, "\"\""), 1)
	assert.ErrorIs(t, err, ErrIncompleteRow, "a quoted empty product name is blank")
}

func TestParseRejectsInvalidField(t *testing.T) {
	p := newTestParser()
	cases := map[int]string{
		ColDate:          "2024-03-15",
		ColTime:          "3pm",
		ColISIN:          "ABC",
		ColQuantity:      "ten",
		ColPrice:         "1.234,5",
		ColTotalCurrency: "XYZ",
	}
	for col, value := range cases {
		_, err := p.Parse(withField(buyRow(), col, value), 1)
		assert.ErrorIs(t, err, ErrInvalidRow, columnNames[col])
	}

	_, err := p.Parse(append(buyRow(), "extra"), 1)
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestValidRowsAlwaysParse(t *testing.T) {
	p := newTestParser()
	v := NewValidator(DefaultSchema())
	rows := [][]string{
		buyRow(),
		withField(buyRow(), ColQuantity, "-10"),
		withField(buyRow(), ColQuantity, "0"),
		withField(withField(buyRow(), ColFee, ""), ColFeeCurrency, ""),
		withField(buyRow(), ColPrice, "0"),
		withField(buyRow(), ColISIN, "XFC000A2YY6Q"),
	}
	require.True(t, v.Validate(csvFile(t, rows...)).Valid)
	for i, r := range rows {
		_, err := p.Parse(r, 3)
		assert.NoError(t, err, "row %d", i)
	}
}

func TestReadRowsLineNumbers(t *testing.T) {
	buf := csvFile(t, buyRow())
	buf.WriteString("\n")
	multiline := withField(buyRow(), ColProduct, "TWO\nLINES")
	w := csv.NewWriter(buf)
	require.NoError(t, w.Write(multiline))
	require.NoError(t, w.Write(buyRow()))
	w.Flush()

	header, rows, err := ReadRows(buf)
	require.NoError(t, err)
	assert.Len(t, header, 19)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{2, 4, 6}, []int{rows[0].Line, rows[1].Line, rows[2].Line})
}

func TestParseKeepsFreeTextVerbatim(t *testing.T) {
	p := newTestParser()
	variants := []string{"ACME PLC", "ACME <i>PLC</i>", "S&P", "S&amp;P"}

	seen := map[string]string{}
	for _, name := range variants {
		rec, err := p.Parse(withField(buyRow(), ColProduct, name), 1)
		require.NoError(t, err)
		assert.Equal(t, name, rec.InstrumentName)
		prev, dup := seen[rec.ContentFingerprint]
		require.False(t, dup, "%q collides with %q", name, prev)
		seen[rec.ContentFingerprint] = name
	}

	rec, err := p.Parse(withField(withField(buyRow(), ColReference, "<b>NDQ</b>"), ColOrderID, "a&amp;b"), 1)
	require.NoError(t, err)
	assert.Equal(t, "<b>NDQ</b>", rec.Reference)
	assert.Equal(t, "a&amp;b", *rec.OrderID)
}

func TestParseRejectsQuantityOutOfRange(t *testing.T) {
	row := withField(buyRow(), ColQuantity, "1000000000")
	require.True(t, NewValidator(DefaultSchema()).Validate(csvFile(t, row)).Valid)

	_, err := newTestParser().Parse(row, 1)
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestExchangeRateIsFreeForm(t *testing.T) {
	row := withField(buyRow(), ColExchangeRate, "n/a")
	result := NewValidator(DefaultSchema()).Validate(csvFile(t, row))
	require.True(t, result.Valid, result.Messages())

	rec, err := newTestParser().Parse(row, 1)
	require.NoError(t, err)
	require.NotNil(t, rec.ExchangeRate)
	assert.Equal(t, "n/a", *rec.ExchangeRate)
}
