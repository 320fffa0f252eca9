package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/trackfolio/backend/src/database"
	"github.com/username/trackfolio/backend/src/model"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/parsers/degiro"
	"github.com/username/trackfolio/backend/src/processors"
)

var exportHeader = []string{
	"Date", "Time", "Product", "ISIN", "Reference", "Venue", "Quantity", "Price", "",
	"Local value", "", "Value", "", "Exchange rate", "Transaction and/or third", "", "Total", "", "Order ID",
}

func tradeRow(date, product, isin, qty, value string) []string {
	return []string{
		date, "09:05", product, isin, "XET", "XETA", qty, "100,0000", "EUR",
		value, "EUR", value, "EUR", "", "-2,00", "EUR", value, "EUR", "",
	}
}

func exportFile(t *testing.T, rows ...[]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(exportHeader))
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.Bytes()
}

type invalidationRecorder struct {
	mu     sync.Mutex
	owners []int64
}

func (r *invalidationRecorder) InvalidateOwnerCache(ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, ownerID)
}

func newLedger(t *testing.T) *model.LedgerStore {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return model.NewLedgerStore(db)
}

func newIngestion(store Ledger, inv CacheInvalidator, opts IngestionOptions) IngestionService {
	return NewIngestionService(store, degiro.DefaultSchema(), processors.NewTransactionProcessor(), inv, opts)
}

func TestIngestDuplicateRowsInOneFile(t *testing.T) {
	store := newLedger(t)
	inv := &invalidationRecorder{}
	svc := newIngestion(store, inv, IngestionOptions{})

	row := tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00")
	result, err := svc.Ingest(context.Background(), bytes.NewReader(exportFile(t, row, row)), 1, UploadMeta{Filename: "a.csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Duplicates)
	assert.NotEmpty(t, result.UploadID)
	assert.Equal(t, []int64{1}, inv.owners)

	count, err := store.CountTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestTwiceIsIdempotent(t *testing.T) {
	store := newLedger(t)
	inv := &invalidationRecorder{}
	svc := newIngestion(store, inv, IngestionOptions{})
	file := exportFile(t,
		tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00"),
		tradeRow("03-01-2024", "ACME", "DE0007164600", "-3", "360,00"),
		tradeRow("03-01-2024", "OTHER", "NL0010273215", "1", "-100,00"),
	)

	first, err := svc.Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Accepted)

	second, err := svc.Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Accepted)
	assert.Equal(t, 3, second.Duplicates)
	assert.Empty(t, second.UploadID)
	assert.Len(t, inv.owners, 1, "nothing new means nothing to invalidate")

	other, err := svc.Ingest(context.Background(), bytes.NewReader(file), 2, UploadMeta{})
	require.NoError(t, err)
	assert.Equal(t, 3, other.Accepted, "owners never share fingerprints")
}

func TestIngestValidationFailureHasNoEffect(t *testing.T) {
	store := newLedger(t)
	inv := &invalidationRecorder{}
	svc := newIngestion(store, inv, IngestionOptions{})

	good := tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00")
	bad := tradeRow("02-01-2024", "ACME", "DE0", "3", "-300,00")
	_, err := svc.Ingest(context.Background(), bytes.NewReader(exportFile(t, good, bad)), 1, UploadMeta{})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Diagnostics, 1)
	assert.Equal(t, 3, vErr.Diagnostics[0].Line)
	assert.Contains(t, vErr.Error(), "file failed validation: Line 3, column 4 (ISIN)")
	assert.Equal(t, vErr.Messages(), []string{vErr.Diagnostics[0].String()})

	count, err := store.CountTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, inv.owners)
}

func TestIngestEmptyFile(t *testing.T) {
	svc := newIngestion(newLedger(t), nil, IngestionOptions{})
	_, err := svc.Ingest(context.Background(), bytes.NewReader(nil), 1, UploadMeta{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.NotEmpty(t, vErr.Diagnostics)
}

func TestIngestRowFailurePolicy(t *testing.T) {
	good := tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00")
	// Passes validation but overflows the stored quantity scale.
	tooLarge := tradeRow("02-01-2024", "ACME", "DE0007164600", "1000000000", "-100,00")
	file := exportFile(t, good, tooLarge)

	t.Run("abort", func(t *testing.T) {
		store := newLedger(t)
		_, err := newIngestion(store, nil, IngestionOptions{Policy: RowPolicyAbort}).
			Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})

		var rowErr *RowParseError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 3, rowErr.Line)
		assert.ErrorIs(t, err, degiro.ErrInvalidRow)

		count, err := store.CountTransactions(context.Background(), 1)
		require.NoError(t, err)
		assert.Zero(t, count, "one bad row aborts the whole batch")
	})

	t.Run("skip", func(t *testing.T) {
		store := newLedger(t)
		result, err := newIngestion(store, nil, IngestionOptions{Policy: RowPolicySkip}).
			Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Accepted)
		require.Len(t, result.Rejected, 1)
		assert.Equal(t, 3, result.Rejected[0].Line)
	})
}

func TestIngestAppendsOnlyNewRows(t *testing.T) {
	store := newLedger(t)
	svc := newIngestion(store, nil, IngestionOptions{})
	ctx := context.Background()

	existing := tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00")
	_, err := svc.Ingest(ctx, bytes.NewReader(exportFile(t, existing)), 1, UploadMeta{})
	require.NoError(t, err)

	fresh := tradeRow("09-01-2024", "OTHER", "NL0010273215", "2,5", "-1234,56")
	result, err := svc.Ingest(ctx, bytes.NewReader(exportFile(t, existing, fresh)), 1, UploadMeta{Filename: "b.csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Empty(t, result.Rejected)

	records, total, err := store.ListTransactions(ctx, 1, models.NewPageRequest(1, 20, 20))
	require.NoError(t, err)
	require.Equal(t, 2, total)

	var added *models.TransactionRecord
	for i := range records {
		if records[i].InstrumentKey == "NL0010273215" {
			added = &records[i]
		}
	}
	require.NotNil(t, added)
	assert.Equal(t, "2024-01-09", added.TradeDate)
	assert.Equal(t, "09:05", added.TradeTime)
	assert.Equal(t, "2.5", added.Quantity.String())
	assert.Equal(t, int64(1000000), added.PriceAmount, "price is kept at four decimals")
	assert.Equal(t, int64(-123456), added.SettlementValueAmount)
	assert.Equal(t, int64(-123456), added.TotalAmount)
	assert.Equal(t, "EUR", added.SettlementValueCurrency)
	require.NotNil(t, added.FeeAmount)
	assert.Equal(t, int64(-200), *added.FeeAmount)
	assert.Nil(t, added.ExchangeRate)
	assert.Nil(t, added.OrderID)
}

func TestIngestKeepsRowsDifferingOnlyInMarkup(t *testing.T) {
	store := newLedger(t)
	svc := newIngestion(store, nil, IngestionOptions{})
	ctx := context.Background()

	for i, names := range [][2]string{{"ACME <i>PLC</i>", "ACME PLC"}, {"S&amp;P", "S&P"}} {
		owner := int64(i + 1)
		file := exportFile(t,
			tradeRow("02-01-2024", names[0], "DE0007164600", "3", "-300,00"),
			tradeRow("02-01-2024", names[1], "DE0007164600", "3", "-300,00"),
		)
		result, err := svc.Ingest(ctx, bytes.NewReader(file), owner, UploadMeta{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Accepted, names[0])
		assert.Equal(t, 0, result.Duplicates, names[0])

		records, _, err := store.ListTransactions(ctx, owner, models.NewPageRequest(1, 20, 20))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.NotEqual(t, records[0].ContentFingerprint, records[1].ContentFingerprint)
		assert.ElementsMatch(t, names[:], []string{records[0].InstrumentName, records[1].InstrumentName})
	}
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	file := exportFile(t, tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00"))
	svc := newIngestion(newLedger(t), nil, IngestionOptions{MaxBytes: int64(len(file) - 1)})
	_, err := svc.Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParseRowFailurePolicy(t *testing.T) {
	assert.Equal(t, RowPolicySkip, ParseRowFailurePolicy(" SKIP "))
	assert.Equal(t, RowPolicyAbort, ParseRowFailurePolicy("abort"))
	assert.Equal(t, RowPolicyAbort, ParseRowFailurePolicy("ignore"))
}

// racingLedger lets a competing upload commit part of the batch right before the first append.
type racingLedger struct {
	*model.LedgerStore
	once sync.Once
}

func (l *racingLedger) AppendAll(ctx context.Context, ownerID int64, records []models.TransactionRecord, upload *models.UploadRecord) (int, error) {
	var raceErr error
	l.once.Do(func() {
		_, raceErr = l.LedgerStore.AppendAll(ctx, ownerID, records[:1], nil)
	})
	if raceErr != nil {
		return 0, raceErr
	}
	return l.LedgerStore.AppendAll(ctx, ownerID, records, upload)
}

func TestIngestRetriesAfterConcurrentInsert(t *testing.T) {
	store := &racingLedger{LedgerStore: newLedger(t)}
	svc := newIngestion(store, nil, IngestionOptions{})
	file := exportFile(t,
		tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00"),
		tradeRow("03-01-2024", "OTHER", "NL0010273215", "1", "-100,00"),
	)

	result, err := svc.Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Duplicates)

	count, err := store.CountTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngestConcurrentUploadsOfSameFile(t *testing.T) {
	store := newLedger(t)
	svc := newIngestion(store, nil, IngestionOptions{})
	file := exportFile(t,
		tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00"),
		tradeRow("03-01-2024", "ACME", "DE0007164600", "-3", "360,00"),
	)

	const uploads = 4
	results := make([]*models.IngestionResult, uploads)
	errs := make([]error, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			results[i], errs[i] = svc.Ingest(ctx, bytes.NewReader(file), 1, UploadMeta{})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i := range results {
		require.NoError(t, errs[i])
		accepted += results[i].Accepted
		assert.Equal(t, 2, results[i].Accepted+results[i].Duplicates)
	}
	assert.Equal(t, 2, accepted)

	count, err := store.CountTransactions(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

type failingLedger struct {
	*model.LedgerStore
}

func (failingLedger) AppendAll(context.Context, int64, []models.TransactionRecord, *models.UploadRecord) (int, error) {
	return 0, errors.New("disk I/O error")
}

func TestIngestStorageFailure(t *testing.T) {
	svc := newIngestion(failingLedger{newLedger(t)}, nil, IngestionOptions{})
	file := exportFile(t, tradeRow("02-01-2024", "ACME", "DE0007164600", "3", "-300,00"))

	result, err := svc.Ingest(context.Background(), bytes.NewReader(file), 1, UploadMeta{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrIngestionFailed)
}
