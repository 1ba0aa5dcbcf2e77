package models

import (
	"time"

	"github.com/google/uuid"
)

// Receivable kinds.
const (
	KindInvoice = "invoice"
	KindOrder   = "order"
)

// Receivable is an open invoice or order balance owned by the ERP. This
// subsystem only reads it; the ERP recomputes Outstanding after an
// assignment is created or reversed.
type Receivable struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `gorm:"-" json:"kind"`
	Number      string    `json:"number"`
	PayerID     string    `json:"payer_id"`
	PayerName   string    `json:"payer_name"`
	PayerBankID string    `json:"payer_bank_id"`
	Outstanding float64   `json:"outstanding"`
	DueDate     time.Time `json:"due_date"`
}
