// Package importer normalizes provider feed records into the transaction
// store. Ingestion is decoupled from matching so imports stay fast and
// matching can be re-run on its own.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/metrics"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/reconcile"
	"zahlungsabgleich-backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RawRecord is one provider-normalized feed entry as delivered by the
// adapters. Amount and booking date arrive as strings and are validated
// here.
type RawRecord struct {
	ExternalID   string `json:"external_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	BookedAt     string `json:"booked_at"`
	Counterparty string `json:"counterparty"`
	Reference    string `json:"reference"`
}

type ImportResult struct {
	BatchID           uuid.UUID                     `json:"batch_id"`
	Imported          int                           `json:"imported"`
	SkippedDuplicates int                           `json:"skipped_duplicates"`
	Errors            []*reconcile.ValidationError  `json:"errors"`
}

type Importer struct {
	db     *gorm.DB
	txRepo *repository.TransactionRepository
	logger *logging.Logger
	meter  *metrics.Metrics
}

func New(db *gorm.DB, txRepo *repository.TransactionRepository, logger *logging.Logger, meter *metrics.Metrics) *Importer {
	return &Importer{
		db:     db,
		txRepo: txRepo,
		logger: logger,
		meter:  meter,
	}
}

// Import normalizes and stores a batch of feed records. Malformed records
// are collected into the result, duplicates (same external id for the same
// source module, whether earlier in this batch or from a previous import)
// are skipped, and a cancelled context stops the batch between records
// while keeping everything already committed.
func (im *Importer) Import(ctx context.Context, sourceModule string, records []RawRecord) (*ImportResult, error) {
	if !models.KnownSource(sourceModule) {
		return nil, fmt.Errorf("%w: %q", reconcile.ErrUnknownSource, sourceModule)
	}

	batch := &models.ImportBatch{
		ID:           uuid.New(),
		SourceModule: sourceModule,
		Status:       models.BatchCompleted,
		StartedAt:    time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := im.db.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("importer: create batch: %w", err)
	}

	result := &ImportResult{BatchID: batch.ID}
	seen := make(map[string]bool)

	for i, record := range records {
		if ctx.Err() != nil {
			batch.Status = models.BatchAborted
			break
		}

		tx, verr := im.normalize(sourceModule, i, record)
		if verr != nil {
			result.Errors = append(result.Errors, verr)
			im.meter.ImportErrors.Inc()
			continue
		}

		if tx.ExternalID != nil {
			if seen[*tx.ExternalID] {
				result.SkippedDuplicates++
				im.meter.DuplicatesSkipped.WithLabelValues(sourceModule).Inc()
				continue
			}
			seen[*tx.ExternalID] = true
		}

		created, err := im.txRepo.Insert(tx)
		if err != nil {
			return nil, fmt.Errorf("importer: insert record %d: %w", i, err)
		}
		if !created {
			result.SkippedDuplicates++
			im.meter.DuplicatesSkipped.WithLabelValues(sourceModule).Inc()
			continue
		}

		result.Imported++
		im.meter.TransactionsImported.WithLabelValues(sourceModule).Inc()
	}

	now := time.Now()
	batch.Imported = result.Imported
	batch.SkippedDuplicates = result.SkippedDuplicates
	batch.Failed = len(result.Errors)
	batch.CompletedAt = &now
	if err := im.db.Save(batch).Error; err != nil {
		return nil, fmt.Errorf("importer: finalize batch: %w", err)
	}

	im.logger.Info("import completed",
		zap.String("source", sourceModule),
		zap.String("batch_id", batch.ID.String()),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.SkippedDuplicates),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

func (im *Importer) normalize(sourceModule string, index int, record RawRecord) (*models.Transaction, *reconcile.ValidationError) {
	amount, err := ParseAmount(record.Amount)
	if err != nil {
		return nil, &reconcile.ValidationError{Index: index, Field: "amount", Message: err.Error()}
	}

	bookedAt, err := ParseDate(record.BookedAt)
	if err != nil {
		return nil, &reconcile.ValidationError{Index: index, Field: "booked_at", Message: err.Error()}
	}

	currency := strings.ToUpper(strings.TrimSpace(record.Currency))
	if currency == "" {
		currency = "EUR"
	}

	tx := &models.Transaction{
		ID:           uuid.New(),
		SourceModule: sourceModule,
		BookedAt:     bookedAt,
		Amount:       amount,
		Currency:     currency,
		Counterparty: strings.TrimSpace(record.Counterparty),
		Reference:    strings.TrimSpace(record.Reference),
		Status:       models.StatusOpen,
		CreatedAt:    time.Now(),
	}
	if externalID := strings.TrimSpace(record.ExternalID); externalID != "" {
		tx.ExternalID = &externalID
	}
	return tx, nil
}
