// Package ledger creates and reverses assignments. Every state transition is
// conditioned on the transaction's current status inside one storage
// transaction, so concurrent callers can never both take the same
// transaction or double-count a receivable.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zahlungsabgleich-backend/internal/logging"
	"zahlungsabgleich-backend/internal/metrics"
	"zahlungsabgleich-backend/internal/models"
	"zahlungsabgleich-backend/internal/receivables"
	"zahlungsabgleich-backend/internal/reconcile"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Ledger struct {
	db      *gorm.DB
	gateway receivables.Gateway
	logger  *logging.Logger
	meter   *metrics.Metrics
}

func New(db *gorm.DB, gateway receivables.Gateway, logger *logging.Logger, meter *metrics.Metrics) *Ledger {
	return &Ledger{
		db:      db,
		gateway: gateway,
		logger:  logger,
		meter:   meter,
	}
}

// Assign links an open transaction to a receivable, marks the transaction
// assigned and asks the ERP to recompute the receivable's balance. The
// assignment write commits before the recompute call; when the recompute
// fails the returned id is still valid, the error wraps
// reconcile.ErrRecomputeFailed and the recompute alone can be retried.
func (l *Ledger) Assign(ctx context.Context, txID uuid.UUID, rec *models.Receivable, method, actorID string, confidence float64, details map[string]interface{}) (uuid.UUID, error) {
	if rec == nil {
		return uuid.Nil, reconcile.ErrReceivableNotFound
	}
	if rec.Outstanding <= 0 {
		return uuid.Nil, fmt.Errorf("%w: %s %s", reconcile.ErrReceivableClosed, rec.Kind, rec.ID)
	}

	assignmentID := uuid.New()
	now := time.Now()

	err := l.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var tx models.Transaction
		if err := dbtx.First(&tx, "id = ?", txID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reconcile.ErrTransactionNotFound
			}
			return err
		}

		// Optimistic status check: the update only wins if the row is still
		// open at write time.
		res := dbtx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txID, models.StatusOpen).
			Updates(map[string]interface{}{
				"status":      models.StatusAssigned,
				"assigned_at": now,
				"reviewed_by": actorID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: transaction %s is %s", reconcile.ErrAlreadyAssigned, txID, tx.Status)
		}

		assignment := &models.Assignment{
			ID:             assignmentID,
			TransactionID:  txID,
			ReceivableKind: rec.Kind,
			ReceivableID:   rec.ID,
			AmountApplied:  tx.Amount,
			Method:         method,
			Confidence:     confidence,
			Active:         true,
			CreatedBy:      actorID,
			CreatedAt:      now,
		}
		if details != nil {
			if blob, err := json.Marshal(details); err == nil {
				assignment.ScoreDetails = blob
			}
		}
		if err := dbtx.Create(assignment).Error; err != nil {
			// The partial unique index over (receivable_kind, receivable_id)
			// WHERE active rejects a second active assignment on the same
			// receivable, no matter how the two writers interleave. The
			// transaction-side index cannot fire here: the status update
			// above already established that no active assignment exists.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s %s already has an active assignment", reconcile.ErrReceivableClosed, rec.Kind, rec.ID)
			}
			return err
		}

		return dbtx.Create(&models.AssignmentAudit{
			ID:             uuid.New(),
			TransactionID:  txID,
			Action:         models.AuditAssigned,
			ReceivableKind: rec.Kind,
			ReceivableID:   &rec.ID,
			PerformedBy:    actorID,
			Reason:         method,
			CreatedAt:      now,
		}).Error
	})
	if err != nil {
		return uuid.Nil, err
	}

	l.meter.AssignmentsCreated.WithLabelValues(method).Inc()
	l.logger.Info("assignment created",
		zap.String("transaction_id", txID.String()),
		zap.String("receivable", rec.Kind+"/"+rec.ID.String()),
		zap.String("method", method),
		zap.Float64("confidence", confidence),
	)

	if err := l.gateway.RecomputeBalance(ctx, rec.Kind, rec.ID); err != nil {
		l.meter.RecomputeFailures.Inc()
		// The assignment is durable; only the recompute needs to be retried.
		return assignmentID, err
	}
	return assignmentID, nil
}

// Ignore moves an open transaction to ignored. Used for entries that are not
// payments (bank fees, interest) and must drop out of matching without being
// reported as unresolved.
func (l *Ledger) Ignore(ctx context.Context, txID uuid.UUID, actorID string) error {
	err := l.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		res := dbtx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txID, models.StatusOpen).
			Updates(map[string]interface{}{
				"status":      models.StatusIgnored,
				"reviewed_by": actorID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := dbtx.Model(&models.Transaction{}).Where("id = ?", txID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return reconcile.ErrTransactionNotFound
			}
			return fmt.Errorf("%w: transaction %s is not open", reconcile.ErrAlreadyAssigned, txID)
		}

		return dbtx.Create(&models.AssignmentAudit{
			ID:            uuid.New(),
			TransactionID: txID,
			Action:        models.AuditIgnored,
			PerformedBy:   actorID,
			CreatedAt:     time.Now(),
		}).Error
	})
	if err != nil {
		return err
	}

	l.meter.TransactionsIgnored.Inc()
	l.logger.Info("transaction ignored",
		zap.String("transaction_id", txID.String()),
		zap.String("actor", actorID),
	)
	return nil
}

// Reverse deactivates the active assignment of a transaction, reverts it to
// open and triggers a balance recompute on the affected receivable.
// Assignments are soft-deleted only; the row stays for audit.
func (l *Ledger) Reverse(ctx context.Context, txID uuid.UUID, actorID string) error {
	var kind string
	var receivableID uuid.UUID

	err := l.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		var assignment models.Assignment
		err := dbtx.Where("transaction_id = ? AND active = ?", txID, true).First(&assignment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: transaction %s", reconcile.ErrNoActiveAssignment, txID)
		}
		if err != nil {
			return err
		}
		kind = assignment.ReceivableKind
		receivableID = assignment.ReceivableID

		now := time.Now()
		res := dbtx.Model(&models.Assignment{}).
			Where("id = ? AND active = ?", assignment.ID, true).
			Updates(map[string]interface{}{
				"active":      false,
				"reversed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: transaction %s", reconcile.ErrNoActiveAssignment, txID)
		}

		if err := dbtx.Model(&models.Transaction{}).
			Where("id = ?", txID).
			Updates(map[string]interface{}{
				"status":      models.StatusOpen,
				"assigned_at": nil,
				"reviewed_by": nil,
			}).Error; err != nil {
			return err
		}

		return dbtx.Create(&models.AssignmentAudit{
			ID:             uuid.New(),
			TransactionID:  txID,
			Action:         models.AuditReversed,
			ReceivableKind: kind,
			ReceivableID:   &receivableID,
			PerformedBy:    actorID,
			CreatedAt:      now,
		}).Error
	})
	if err != nil {
		return err
	}

	l.meter.AssignmentsReversed.Inc()
	l.logger.Info("assignment reversed",
		zap.String("transaction_id", txID.String()),
		zap.String("receivable", kind+"/"+receivableID.String()),
	)

	if err := l.gateway.RecomputeBalance(ctx, kind, receivableID); err != nil {
		l.meter.RecomputeFailures.Inc()
		return err
	}
	return nil
}

// RetryRecompute re-runs the ERP balance recompute for the receivable behind
// a transaction's active assignment. Used after Assign or Reverse reported
// reconcile.ErrRecomputeFailed; the recompute is idempotent so retrying is
// always safe.
func (l *Ledger) RetryRecompute(ctx context.Context, txID uuid.UUID) error {
	var assignment models.Assignment
	err := l.db.WithContext(ctx).
		Where("transaction_id = ? AND active = ?", txID, true).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: transaction %s", reconcile.ErrNoActiveAssignment, txID)
	}
	if err != nil {
		return err
	}

	l.meter.RecomputeRetries.Inc()
	return l.gateway.RecomputeBalance(ctx, assignment.ReceivableKind, assignment.ReceivableID)
}
