// backend/src/services/ingestion_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/model"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/parsers/degiro"
	"github.com/username/trackfolio/backend/src/processors"
)

// RowFailurePolicy decides what happens to a structurally valid row the parser still rejects.
type RowFailurePolicy string

const (
	RowPolicyAbort RowFailurePolicy = "abort"
	RowPolicySkip  RowFailurePolicy = "skip"
)

// ParseRowFailurePolicy maps the ROW_FAILURE_POLICY setting; anything unknown aborts.
func ParseRowFailurePolicy(s string) RowFailurePolicy {
	if RowFailurePolicy(strings.ToLower(strings.TrimSpace(s))) == RowPolicySkip {
		return RowPolicySkip
	}
	return RowPolicyAbort
}

// maxAppendAttempts bounds the retries after losing a race on the fingerprint constraint.
const maxAppendAttempts = 3

type IngestionOptions struct {
	Policy   RowFailurePolicy
	MaxBytes int64 // 0 means unlimited
}

type ingestionServiceImpl struct {
	store       Ledger
	validator   *degiro.Validator
	parser      *degiro.RowParser
	invalidator CacheInvalidator
	opts        IngestionOptions
}

func NewIngestionService(
	store Ledger,
	schema degiro.Schema,
	processor processors.TransactionProcessor,
	invalidator CacheInvalidator,
	opts IngestionOptions,
) IngestionService {
	if opts.Policy == "" {
		opts.Policy = RowPolicyAbort
	}
	return &ingestionServiceImpl{
		store:       store,
		validator:   degiro.NewValidator(schema),
		parser:      degiro.NewRowParser(schema, processor),
		invalidator: invalidator,
		opts:        opts,
	}
}

func (s *ingestionServiceImpl) Ingest(ctx context.Context, r io.Reader, ownerID int64, meta UploadMeta) (*models.IngestionResult, error) {
	startTime := time.Now()
	log := logger.FromContext(ctx).With("ownerID", ownerID)
	log.Info("Ingest START", "filename", meta.Filename, "size", meta.Size, "policy", s.opts.Policy)

	data, err := s.readAll(r)
	if err != nil {
		return nil, err
	}

	validation := s.validator.Validate(bytes.NewReader(data))
	if !validation.Valid {
		log.Info("Upload rejected by validation", "errors", len(validation.Errors))
		return nil, &ValidationError{Diagnostics: validation.Errors}
	}

	_, rows, err := degiro.ReadRows(bytes.NewReader(data))
	if err != nil {
		// The validator already accepted this exact content.
		return nil, fmt.Errorf("%w: re-reading validated file: %w", ErrIngestionFailed, err)
	}

	result := &models.IngestionResult{}
	var candidates []models.TransactionRecord
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		rec, err := s.parser.Parse(row.Fields, ownerID)
		if err != nil {
			parseErr := &RowParseError{Line: row.Line, Err: err}
			if s.opts.Policy == RowPolicyAbort {
				log.Info("Upload aborted on unparsable row", "line", row.Line, "error", err)
				return nil, parseErr
			}
			log.Debug("Skipping unparsable row", "line", row.Line, "error", err)
			result.Rejected = append(result.Rejected, parseErr.Diagnostic())
			continue
		}
		if _, dup := seen[rec.ContentFingerprint]; dup {
			result.Duplicates++
			continue
		}
		seen[rec.ContentFingerprint] = struct{}{}
		candidates = append(candidates, rec)
	}

	accepted, duplicates, uploadID, err := s.appendNew(ctx, ownerID, candidates, meta, result.Duplicates)
	if err != nil {
		return nil, err
	}
	result.Accepted = accepted
	result.Duplicates = duplicates
	result.UploadID = uploadID

	if accepted > 0 && s.invalidator != nil {
		s.invalidator.InvalidateOwnerCache(ownerID)
	}

	log.Info("Ingest END", "accepted", result.Accepted, "duplicates", result.Duplicates,
		"rejected", len(result.Rejected), "duration", time.Since(startTime))
	return result, nil
}

func (s *ingestionServiceImpl) readAll(r io.Reader) ([]byte, error) {
	if s.opts.MaxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading upload: %w", ErrIngestionFailed, err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %w", ErrIngestionFailed, err)
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// appendNew drops candidates already in the ledger and commits the rest. Losing a race against a
// concurrent upload of the same rows surfaces as a unique violation; those rows are then demoted
// to duplicates and the remainder is retried.
func (s *ingestionServiceImpl) appendNew(ctx context.Context, ownerID int64, candidates []models.TransactionRecord, meta UploadMeta, duplicates int) (int, int, string, error) {
	log := logger.FromContext(ctx).With("ownerID", ownerID)
	pending := candidates

	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		if len(pending) == 0 {
			return 0, duplicates, "", nil
		}

		fingerprints := make([]string, len(pending))
		for i, rec := range pending {
			fingerprints[i] = rec.ContentFingerprint
		}
		existing, err := s.store.FindExistingFingerprints(ctx, ownerID, fingerprints)
		if err != nil {
			log.Error("Failed to look up existing fingerprints", "error", err)
			return 0, 0, "", fmt.Errorf("%w: %w", ErrIngestionFailed, err)
		}

		var fresh []models.TransactionRecord
		for _, rec := range pending {
			if _, found := existing[rec.ContentFingerprint]; found {
				duplicates++
				continue
			}
			fresh = append(fresh, rec)
		}
		if len(fresh) == 0 {
			return 0, duplicates, "", nil
		}

		upload := &models.UploadRecord{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			Filename:   meta.Filename,
			FileSize:   meta.Size,
			Accepted:   len(fresh),
			Duplicates: duplicates,
		}
		inserted, err := s.store.AppendAll(ctx, ownerID, fresh, upload)
		if err == nil {
			return inserted, duplicates, upload.ID, nil
		}
		if !model.IsUniqueViolation(err) {
			log.Error("Failed to append transactions", "error", err, "rows", len(fresh))
			return 0, 0, "", fmt.Errorf("%w: %w", ErrIngestionFailed, err)
		}
		log.Warn("Concurrent upload committed some rows first, retrying", "attempt", attempt)
		pending = fresh
	}

	log.Error("Giving up after repeated fingerprint conflicts", "attempts", maxAppendAttempts)
	return 0, 0, "", fmt.Errorf("%w: too many concurrent conflicts", ErrIngestionFailed)
}
