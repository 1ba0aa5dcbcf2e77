package receivables

import (
	"context"
	"errors"
	"fmt"

	"zahlungsabgleich-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ERP table per receivable kind. The warehouse database is third-party; the
// column set of both tables is identical.
var kindTables = map[string]string{
	models.KindInvoice: "erp_invoices",
	models.KindOrder:   "erp_orders",
}

// ERPGateway reads receivables straight from the warehouse database and
// triggers the ERP's balance recompute procedure.
type ERPGateway struct {
	db *gorm.DB
}

func NewERPGateway(db *gorm.DB) *ERPGateway {
	return &ERPGateway{db: db}
}

func (g *ERPGateway) OpenReceivables(ctx context.Context, filter Filter) ([]models.Receivable, error) {
	kinds := filter.Kinds
	if len(kinds) == 0 {
		kinds = []string{models.KindInvoice, models.KindOrder}
	}

	var all []models.Receivable
	for _, kind := range kinds {
		table, ok := kindTables[kind]
		if !ok {
			return nil, fmt.Errorf("receivables: unknown kind %q", kind)
		}

		query := g.db.WithContext(ctx).Table(table).Where("outstanding > 0")
		if filter.PayerID != "" {
			query = query.Where("payer_id = ?", filter.PayerID)
		}

		var rows []models.Receivable
		if err := query.Order("due_date ASC, id ASC").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("receivables: query %s: %w", table, err)
		}
		for i := range rows {
			rows[i].Kind = kind
		}
		all = append(all, rows...)
	}
	return all, nil
}

func (g *ERPGateway) ReceivablesByPayer(ctx context.Context, payerID string) ([]models.Receivable, error) {
	return g.OpenReceivables(ctx, Filter{PayerID: payerID})
}

func (g *ERPGateway) Receivable(ctx context.Context, kind string, id uuid.UUID) (*models.Receivable, error) {
	table, ok := kindTables[kind]
	if !ok {
		return nil, fmt.Errorf("receivables: unknown kind %q", kind)
	}

	var row models.Receivable
	err := g.db.WithContext(ctx).Table(table).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receivables: query %s: %w", table, err)
	}
	row.Kind = kind
	return &row, nil
}

func (g *ERPGateway) RecomputeBalance(ctx context.Context, kind string, id uuid.UUID) error {
	if _, ok := kindTables[kind]; !ok {
		return fmt.Errorf("receivables: unknown kind %q", kind)
	}
	// Stored procedure owned by the ERP; recomputes paid/open amounts for one
	// document and is safe to call repeatedly.
	err := g.db.WithContext(ctx).Exec("SELECT erp_recompute_balance(?, ?)", kind, id).Error
	if err != nil {
		return fmt.Errorf("receivables: recompute %s/%s: %w", kind, id, err)
	}
	return nil
}
