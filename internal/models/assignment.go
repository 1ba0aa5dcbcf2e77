package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Assignment methods.
const (
	MethodAutomatic = "automatic"
	MethodManual    = "manual"
)

// Assignment links one Transaction to one Receivable. Reversal deactivates
// the row instead of deleting it; at most one active assignment may exist
// per transaction and per receivable at any time. Both invariants are
// backed by partial unique indexes so concurrent writers fail on commit
// instead of racing a read-check.
type Assignment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID  uuid.UUID      `gorm:"index;uniqueIndex:uniq_active_assign_tx,where:active" json:"transaction_id"`
	ReceivableKind string         `gorm:"uniqueIndex:uniq_active_assign_receivable,where:active" json:"receivable_kind"`
	ReceivableID   uuid.UUID      `gorm:"uniqueIndex:uniq_active_assign_receivable,where:active" json:"receivable_id"`
	AmountApplied  float64        `json:"amount_applied"`
	Method         string         `json:"method"`
	Confidence     float64        `json:"confidence"`
	Active         bool           `gorm:"index" json:"active"`
	ScoreDetails   datatypes.JSON `json:"score_details"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	ReversedAt     *time.Time     `json:"reversed_at"`
}
