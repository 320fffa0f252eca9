package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/trackfolio/backend/src/models"
)

// Per-instrument positions. last_id is the most recently inserted row of the group; name and
// currency are always taken from it.
const positionsCTE = `
	WITH positions AS (
		SELECT instrument_key,
		       SUM(quantity_e10) AS quantity_e10,
		       SUM(settlement_value_amount) AS profit_loss,
		       MIN(CASE WHEN quantity_e10 > 0 THEN trade_date END) AS first_purchase_date,
		       MAX(CASE WHEN quantity_e10 < 0 THEN trade_date END) AS last_sale_date,
		       MAX(id) AS last_id
		FROM transactions
		WHERE owner_id = ?
		GROUP BY instrument_key
	)`

var closedTradeOrderColumns = map[string]string{
	models.SortByProfitLoss:        "p.profit_loss",
	models.SortByLastSaleDate:      "p.last_sale_date",
	models.SortByFirstPurchaseDate: "p.first_purchase_date",
}

// Holdings lists instruments with a non-zero net quantity, largest position first.
func (s *LedgerStore) Holdings(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Holding, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, positionsCTE+`
		SELECT COUNT(*) FROM positions WHERE quantity_e10 <> 0`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting holdings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, positionsCTE+`
		SELECT p.instrument_key, l.instrument_name, p.quantity_e10
		FROM positions p
		JOIN transactions l ON l.id = p.last_id
		WHERE p.quantity_e10 <> 0
		ORDER BY p.quantity_e10 DESC, p.instrument_key ASC
		LIMIT ? OFFSET ?`, ownerID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("error querying holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		var quantityE10 int64
		if err := rows.Scan(&h.InstrumentKey, &h.InstrumentName, &quantityE10); err != nil {
			return nil, 0, fmt.Errorf("error scanning holding: %w", err)
		}
		h.Quantity = models.QuantityFromScaled(quantityE10)
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over holdings: %w", err)
	}
	return holdings, total, nil
}

// ClosedTrades lists fully round-tripped instruments. Ties on the sort key are broken by instrument key.
func (s *LedgerStore) ClosedTrades(ctx context.Context, ownerID int64, page models.PageRequest, sort models.TradeSort) ([]models.ClosedTrade, int, error) {
	orderColumn, ok := closedTradeOrderColumns[sort.By]
	if !ok {
		orderColumn = closedTradeOrderColumns[models.SortByLastSaleDate]
	}
	direction := "DESC"
	if sort.Ascending {
		direction = "ASC"
	}

	var total int
	err := s.db.QueryRowContext(ctx, positionsCTE+`
		SELECT COUNT(*) FROM positions WHERE quantity_e10 = 0`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting closed trades: %w", err)
	}

	// orderColumn and direction come from fixed whitelists above.
	query := positionsCTE + `
		SELECT p.instrument_key, l.instrument_name, p.profit_loss, l.settlement_value_currency,
		       p.first_purchase_date, p.last_sale_date
		FROM positions p
		JOIN transactions l ON l.id = p.last_id
		WHERE p.quantity_e10 = 0
		ORDER BY ` + orderColumn + ` ` + direction + `, p.instrument_key ASC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, ownerID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("error querying closed trades: %w", err)
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var ct models.ClosedTrade
		var firstPurchase, lastSale sql.NullString
		if err := rows.Scan(&ct.InstrumentKey, &ct.InstrumentName, &ct.ProfitLoss, &ct.Currency, &firstPurchase, &lastSale); err != nil {
			return nil, 0, fmt.Errorf("error scanning closed trade: %w", err)
		}
		ct.FirstPurchaseDate = firstPurchase.String
		ct.LastSaleDate = lastSale.String
		trades = append(trades, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over closed trades: %w", err)
	}
	return trades, total, nil
}

// ClosedTradeTotals returns profit/loss and currency of every closed trade, ordered by instrument key.
func (s *LedgerStore) ClosedTradeTotals(ctx context.Context, ownerID int64) ([]models.ClosedTradeTotal, error) {
	rows, err := s.db.QueryContext(ctx, positionsCTE+`
		SELECT p.instrument_key, p.profit_loss, l.settlement_value_currency
		FROM positions p
		JOIN transactions l ON l.id = p.last_id
		WHERE p.quantity_e10 = 0
		ORDER BY p.instrument_key ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error querying closed trade totals: %w", err)
	}
	defer rows.Close()

	var totals []models.ClosedTradeTotal
	for rows.Next() {
		var t models.ClosedTradeTotal
		if err := rows.Scan(&t.InstrumentKey, &t.ProfitLoss, &t.Currency); err != nil {
			return nil, fmt.Errorf("error scanning closed trade total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
