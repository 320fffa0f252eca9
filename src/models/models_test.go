package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewPageRequestClamps(t *testing.T) {
	tests := []struct {
		page, perPage, def int
		want               PageRequest
	}{
		{0, 0, 20, PageRequest{Page: 1, PerPage: 20}},
		{-3, 500, 10, PageRequest{Page: 1, PerPage: MaxPerPage}},
		{4, 15, 10, PageRequest{Page: 4, PerPage: 15}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewPageRequest(tt.page, tt.perPage, tt.def))
	}
	assert.Equal(t, 45, NewPageRequest(4, 15, 10).Offset())
}

func TestNewPage(t *testing.T) {
	p := NewPage[int](nil, 1, 20, 0)
	assert.Equal(t, []int{}, p.Data)
	assert.Equal(t, 1, p.LastPage)

	p = NewPage([]int{1, 2}, 3, 2, 5)
	assert.Equal(t, 3, p.LastPage)
}

func TestNewTradeSort(t *testing.T) {
	assert.Equal(t, TradeSort{By: SortByLastSaleDate}, NewTradeSort("", ""))
	assert.Equal(t, TradeSort{By: SortByLastSaleDate}, NewTradeSort("name; DROP TABLE", "up"))
	assert.Equal(t, TradeSort{By: SortByLastSaleDate, Ascending: true}, NewTradeSort("name; DROP TABLE", "ASC"))
	assert.Equal(t, TradeSort{By: SortByProfitLoss, Ascending: true}, NewTradeSort("profit_loss", "Asc"))
	assert.Equal(t, TradeSort{By: SortByProfitLoss, Ascending: true}, NewTradeSort("profit_loss", "asc"))
	assert.Equal(t, TradeSort{By: SortByFirstPurchaseDate}, NewTradeSort("first_purchase_date", "desc"))
}

func TestDiagnosticString(t *testing.T) {
	assert.Equal(t, "Line 3, column 4 (ISIN): too short", Diagnostic{Line: 3, Column: "column 4 (ISIN)", Message: "too short"}.String())
	assert.Equal(t, "Line 9: Expected 19 columns, found 18", Diagnostic{Line: 9, Message: "Expected 19 columns, found 18"}.String())
	assert.Equal(t, "File is empty", Diagnostic{Message: "File is empty"}.String())
}

func TestScaledQuantityRoundTrip(t *testing.T) {
	rec := TransactionRecord{Quantity: decimal.RequireFromString("-12.5")}
	assert.Equal(t, int64(-125000000000), rec.ScaledQuantity())
	assert.True(t, QuantityFromScaled(rec.ScaledQuantity()).Equal(rec.Quantity))
}
