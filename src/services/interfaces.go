// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"io"

	"github.com/username/trackfolio/backend/src/models"
)

// Define common service errors
var (
	ErrIngestionFailed = errors.New("ingestion failed")
	ErrFileTooLarge    = errors.New("file exceeds the maximum upload size")
)

// Ledger is the storage the services work against. *model.LedgerStore implements it.
type Ledger interface {
	AppendAll(ctx context.Context, ownerID int64, records []models.TransactionRecord, upload *models.UploadRecord) (int, error)
	FindExistingFingerprints(ctx context.Context, ownerID int64, fingerprints []string) (map[string]struct{}, error)
	CountTransactions(ctx context.Context, ownerID int64) (int, error)
	ListTransactions(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.TransactionRecord, int, error)
	Holdings(ctx context.Context, ownerID int64, page models.PageRequest) ([]models.Holding, int, error)
	ClosedTrades(ctx context.Context, ownerID int64, page models.PageRequest, sort models.TradeSort) ([]models.ClosedTrade, int, error)
	ClosedTradeTotals(ctx context.Context, ownerID int64) ([]models.ClosedTradeTotal, error)
}

// UploadMeta describes the uploaded file for the upload history.
type UploadMeta struct {
	Filename string
	Size     int64
}

// IngestionService validates, parses and deduplicates a broker export into the owner's ledger.
type IngestionService interface {
	Ingest(ctx context.Context, r io.Reader, ownerID int64, meta UploadMeta) (*models.IngestionResult, error)
}

// PortfolioService answers read-only questions about an owner's ledger.
type PortfolioService interface {
	GetHoldings(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.Holding], error)
	GetClosedTrades(ctx context.Context, ownerID int64, page models.PageRequest, sort models.TradeSort) (models.Page[models.ClosedTrade], error)
	GetTradesSummary(ctx context.Context, ownerID int64) (models.TradesSummary, error)
	GetTransactions(ctx context.Context, ownerID int64, page models.PageRequest) (models.Page[models.TransactionRecord], error)
	CountTransactions(ctx context.Context, ownerID int64) (int, error)
	InvalidateOwnerCache(ownerID int64)
}

// CacheInvalidator is notified after rows were committed for an owner.
type CacheInvalidator interface {
	InvalidateOwnerCache(ownerID int64)
}
