// Package reconcile defines the error taxonomy shared by the importer,
// matching engine and assignment ledger.
package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionNotFound is returned when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("reconcile: transaction not found")

	// ErrAlreadyAssigned is returned when an assignment or ignore is attempted
	// on a transaction that is no longer open. Indicates a race or stale UI
	// state; the caller should re-query, never retry blindly.
	ErrAlreadyAssigned = errors.New("reconcile: transaction already assigned")

	// ErrNoActiveAssignment is returned by reverse and recompute-retry when the
	// transaction has no active assignment.
	ErrNoActiveAssignment = errors.New("reconcile: no active assignment")

	// ErrReceivableNotFound is returned when the target receivable does not
	// exist in the ERP.
	ErrReceivableNotFound = errors.New("reconcile: receivable not found")

	// ErrReceivableClosed is returned when the target receivable has no
	// outstanding balance left for this subsystem to settle.
	ErrReceivableClosed = errors.New("reconcile: receivable has no outstanding balance")

	// ErrRecomputeFailed is returned when the ERP balance recompute call failed
	// or timed out. The assignment write is already durable at that point, so
	// the recompute can be retried on its own.
	ErrRecomputeFailed = errors.New("reconcile: receivable balance recompute failed")

	// ErrUnknownSource is returned for an import against an unsupported source
	// module.
	ErrUnknownSource = errors.New("reconcile: unknown source module")
)

// ValidationError describes one malformed import record. Import collects
// these per batch instead of aborting.
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reconcile: record %d: %s: %s", e.Index, e.Field, e.Message)
}

// IsConflict reports whether err is a state-machine violation the caller
// should resolve by re-querying.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned) || errors.Is(err, ErrNoActiveAssignment)
}

// IsRetryable reports whether err can be retried without risking a duplicate
// assignment.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecomputeFailed)
}
