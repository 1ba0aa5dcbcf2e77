package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction statuses.
const (
	StatusOpen     = "open"
	StatusAssigned = "assigned"
	StatusIgnored  = "ignored"
)

// Source modules a transaction can be imported from.
const (
	SourcePSP     = "psp"
	SourceBank    = "bank"
	SourceGeneric = "generic"
)

// KnownSource reports whether s is one of the supported source modules.
func KnownSource(s string) bool {
	switch s {
	case SourcePSP, SourceBank, SourceGeneric:
		return true
	}
	return false
}

// Transaction is one inbound payment event. Rows are never deleted once
// imported; status transitions are open -> assigned/ignored and back to open
// on reversal.
type Transaction struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceModule string    `gorm:"index;uniqueIndex:idx_tx_source_external" json:"source_module"`
	// ExternalID is the provider's transaction id, unique per source module
	// when present. Nil for feeds that carry no stable identifier.
	ExternalID   *string   `gorm:"uniqueIndex:idx_tx_source_external" json:"external_id"`
	BookedAt     time.Time `gorm:"index" json:"booked_at"`
	Amount       float64   `gorm:"index" json:"amount"`
	Currency     string    `json:"currency"`
	Counterparty string    `json:"counterparty"`
	Reference    string    `json:"reference"`
	Status       string    `gorm:"index" json:"status"`
	AssignedAt   *time.Time `json:"assigned_at"`
	ReviewedBy   *string    `json:"reviewed_by"`
	CreatedAt    time.Time  `json:"created_at"`
}
