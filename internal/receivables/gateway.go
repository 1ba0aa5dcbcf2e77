// Package receivables reaches the ERP's invoice and order balances. The ERP
// owns these tables; this subsystem reads them and asks the ERP to recompute
// a balance after an assignment is created or reversed.
package receivables

import (
	"context"

	"zahlungsabgleich-backend/internal/models"

	"github.com/google/uuid"
)

// Filter narrows an open-receivables query. Zero values mean "no filter".
type Filter struct {
	// Kinds restricts the receivable kinds to fetch; empty means both.
	Kinds []string
	// PayerID restricts to a single payer.
	PayerID string
}

type Gateway interface {
	// OpenReceivables returns receivables with outstanding balance > 0.
	OpenReceivables(ctx context.Context, filter Filter) ([]models.Receivable, error)

	// ReceivablesByPayer returns all open receivables for one payer. Used for
	// manual search in the review UI.
	ReceivablesByPayer(ctx context.Context, payerID string) ([]models.Receivable, error)

	// Receivable fetches a single receivable by kind and id. Returns nil when
	// it does not exist.
	Receivable(ctx context.Context, kind string, id uuid.UUID) (*models.Receivable, error)

	// RecomputeBalance asks the ERP to recompute the outstanding balance of
	// one receivable. Idempotent; must be called after every assignment
	// creation or reversal.
	RecomputeBalance(ctx context.Context, kind string, id uuid.UUID) error
}
