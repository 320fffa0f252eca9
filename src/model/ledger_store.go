package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/username/trackfolio/backend/src/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// fingerprintLookupChunk keeps IN lists well below SQLite's bound-variable limit.
const fingerprintLookupChunk = 500

var ErrOwnerMismatch = errors.New("record belongs to another owner")

// LedgerStore is the append-only transaction ledger. Rows are never updated or deleted.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// IsUniqueViolation reports whether err comes from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// AppendAll inserts records and the optional upload audit row in one transaction.
// Either every row is committed or none is.
func (s *LedgerStore) AppendAll(ctx context.Context, ownerID int64, records []models.TransactionRecord, upload *models.UploadRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `INSERT INTO transactions
		(owner_id, trade_date, trade_time, instrument_name, instrument_key, reference, venue,
		quantity_e10, price_amount, price_currency, local_value_amount, local_value_currency,
		settlement_value_amount, settlement_value_currency, exchange_rate, fee_amount, fee_currency,
		total_amount, total_currency, order_id, content_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.OwnerID != ownerID {
			return 0, fmt.Errorf("%w: fingerprint %s", ErrOwnerMismatch, rec.ContentFingerprint)
		}
		_, err := stmt.ExecContext(ctx,
			ownerID, rec.TradeDate, rec.TradeTime, rec.InstrumentName, rec.InstrumentKey, rec.Reference, nullString(rec.Venue),
			rec.ScaledQuantity(), rec.PriceAmount, rec.PriceCurrency, rec.LocalValueAmount, rec.LocalValueCurrency,
			rec.SettlementValueAmount, rec.SettlementValueCurrency, nullString(rec.ExchangeRate), nullInt(rec.FeeAmount), nullString(rec.FeeCurrency),
			rec.TotalAmount, rec.TotalCurrency, nullString(rec.OrderID), rec.ContentFingerprint,
		)
		if err != nil {
			return 0, fmt.Errorf("error inserting transaction (fingerprint: %s): %w", rec.ContentFingerprint, err)
		}
	}

	if upload != nil {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO uploads (id, owner_id, filename, file_size, accepted_count, duplicate_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			upload.ID, ownerID, upload.Filename, upload.FileSize, len(records), upload.Duplicates,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to record upload in history: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return len(records), nil
}

// FindExistingFingerprints returns the subset of fingerprints already in the owner's ledger.
func (s *LedgerStore) FindExistingFingerprints(ctx context.Context, ownerID int64, fingerprints []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(fingerprints); start += fingerprintLookupChunk {
		end := min(start+fingerprintLookupChunk, len(fingerprints))
		chunk := fingerprints[start:end]

		query := `SELECT content_fingerprint FROM transactions WHERE owner_id = ? AND content_fingerprint IN (?` +
			strings.Repeat(",?", len(chunk)-1) + `)`
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, ownerID)
		for _, fp := range chunk {
			args = append(args, fp)
		}

		if err := s.collectFingerprints(ctx, query, args, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (s *LedgerStore) collectFingerprints(ctx context.Context, query string, args []interface{}, into map[string]struct{}) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error querying fingerprints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return fmt.Errorf("error scanning fingerprint: %w", err)
		}
		into[fp] = struct{}{}
	}
	return rows.Err()
}

// CountTransactions returns the number of ledger rows of an owner.
func (s *LedgerStore) CountTransactions(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting transactions: %w", err)
	}
	return count, nil
}

// ListTransactions pages through an owner's ledger, newest trade first.
func (s *LedgerStore) ListTransactions(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.TransactionRecord, int, error) {
	total, err := s.CountTransactions(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, trade_date, trade_time, instrument_name, instrument_key, reference, venue,
		       quantity_e10, price_amount, price_currency, local_value_amount, local_value_currency,
		       settlement_value_amount, settlement_value_currency, exchange_rate, fee_amount, fee_currency,
		       total_amount, total_currency, order_id, content_fingerprint
		FROM transactions
		WHERE owner_id = ?
		ORDER BY trade_date DESC, trade_time DESC, id DESC
		LIMIT ? OFFSET ?`, ownerID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var (
			rec                                  models.TransactionRecord
			quantityE10                          int64
			venue, exchangeRate, feeCur, orderID sql.NullString
			feeAmount                            sql.NullInt64
		)
		err := rows.Scan(
			&rec.ID, &rec.OwnerID, &rec.TradeDate, &rec.TradeTime, &rec.InstrumentName, &rec.InstrumentKey, &rec.Reference, &venue,
			&quantityE10, &rec.PriceAmount, &rec.PriceCurrency, &rec.LocalValueAmount, &rec.LocalValueCurrency,
			&rec.SettlementValueAmount, &rec.SettlementValueCurrency, &exchangeRate, &feeAmount, &feeCur,
			&rec.TotalAmount, &rec.TotalCurrency, &orderID, &rec.ContentFingerprint)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning transaction: %w", err)
		}
		rec.Quantity = models.QuantityFromScaled(quantityE10)
		rec.Venue = stringPtr(venue)
		rec.ExchangeRate = stringPtr(exchangeRate)
		rec.FeeCurrency = stringPtr(feeCur)
		rec.OrderID = stringPtr(orderID)
		if feeAmount.Valid {
			v := feeAmount.Int64
			rec.FeeAmount = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over transactions: %w", err)
	}
	return out, total, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
