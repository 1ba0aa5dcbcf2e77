package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	AuditAssigned = "assigned"
	AuditReversed = "reversed"
	AuditIgnored  = "ignored"
)

type AssignmentAudit struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID  uuid.UUID `gorm:"index"`
	Action         string
	ReceivableKind string
	ReceivableID   *uuid.UUID
	PerformedBy    string
	Reason         string
	CreatedAt      time.Time
}
