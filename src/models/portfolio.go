package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Holding is an instrument with a non-zero net quantity for an owner.
type Holding struct {
	InstrumentKey  string          `json:"isin"`
	InstrumentName string          `json:"name"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// ClosedTrade is an instrument whose net quantity is exactly zero.
type ClosedTrade struct {
	InstrumentKey     string `json:"isin"`
	InstrumentName    string `json:"name"`
	ProfitLoss        int64  `json:"profit_loss"` // minor units of Currency
	Currency          string `json:"currency"`
	FirstPurchaseDate string `json:"first_purchase_date,omitempty"`
	LastSaleDate      string `json:"last_sale_date,omitempty"`
}

// ClosedTradeTotal is the reduced projection the summary is computed from.
type ClosedTradeTotal struct {
	InstrumentKey string
	ProfitLoss    int64
	Currency      string
}

// TradesSummary aggregates the profit/loss of every closed trade of an owner.
// Currency is a display choice only: sums are not converted between currencies.
type TradesSummary struct {
	PositiveSum int64  `json:"positive_sum"`
	NegativeSum int64  `json:"negative_sum"` // absolute value
	Difference  int64  `json:"difference"`
	Currency    string `json:"currency"`
	TradeCount  int    `json:"trade_count"`
}

// Page is one page of an owner-scoped listing.
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// NewPage fills the pagination metadata. LastPage is at least 1.
func NewPage[T any](data []T, page, perPage, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}
	return Page[T]{Data: data, CurrentPage: page, PerPage: perPage, Total: total, LastPage: lastPage}
}

// PageRequest is a normalized page/per_page pair.
type PageRequest struct {
	Page    int
	PerPage int
}

// MaxPerPage caps every paginated listing.
const MaxPerPage = 100

// NewPageRequest clamps page to >= 1 and perPage to 1..MaxPerPage, using defaultPerPage when perPage <= 0.
func NewPageRequest(page, perPage, defaultPerPage int) PageRequest {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return PageRequest{Page: page, PerPage: perPage}
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Sort keys for closed trades.
const (
	SortByProfitLoss        = "profit_loss"
	SortByLastSaleDate      = "last_sale_date"
	SortByFirstPurchaseDate = "first_purchase_date"
)

// TradeSort selects the closed-trade ordering. Unknown keys fall back to last_sale_date.
type TradeSort struct {
	By        string
	Ascending bool
}

// NewTradeSort normalizes user-supplied sort parameters. Any order other than "asc", in any case, is descending.
func NewTradeSort(by, order string) TradeSort {
	switch by {
	case SortByProfitLoss, SortByLastSaleDate, SortByFirstPurchaseDate:
	default:
		by = SortByLastSaleDate
	}
	return TradeSort{By: by, Ascending: strings.EqualFold(order, "asc")}
}
