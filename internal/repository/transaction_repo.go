package repository

import (
	"errors"
	"time"

	"zahlungsabgleich-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Expose DB if needed
func (r *TransactionRepository) DB() *gorm.DB {
	return r.db
}

// Insert stores a new transaction. When the record carries an external id,
// a conflicting (source_module, external_id) pair makes the insert a no-op
// and Insert reports created=false.
func (r *TransactionRepository) Insert(tx *models.Transaction) (bool, error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	if tx.ExternalID == nil {
		return true, r.db.Create(tx).Error
	}

	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_module"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Get fetches a single transaction by id.
func (r *TransactionRepository) Get(id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByStatus returns transactions with the given status, optionally
// filtered by source module, oldest booking first.
func (r *TransactionRepository) ListByStatus(status, sourceModule string) ([]models.Transaction, error) {
	var txs []models.Transaction
	query := r.db.Where("status = ?", status).Order("booked_at ASC, id ASC")
	if sourceModule != "" {
		query = query.Where("source_module = ?", sourceModule)
	}
	err := query.Find(&txs).Error
	return txs, err
}

type Stats struct {
	Total       int64   `json:"total"`
	TotalAmount float64 `json:"total_amount"`

	OpenCount int64   `json:"open_count"`
	OpenSum   float64 `json:"open_sum"`

	AssignedCount int64   `json:"assigned_count"`
	AssignedSum   float64 `json:"assigned_sum"`

	IgnoredCount int64   `json:"ignored_count"`
	IgnoredSum   float64 `json:"ignored_sum"`
}

type statRow struct {
	Status string
	Count  int64
	Sum    float64
}

// GetStats aggregates transaction counts and amounts by status.
func (r *TransactionRepository) GetStats() (Stats, error) {
	var stats Stats
	var rows []statRow

	err := r.db.Model(&models.Transaction{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		stats.Total += row.Count
		stats.TotalAmount += row.Sum

		switch row.Status {
		case models.StatusOpen:
			stats.OpenCount = row.Count
			stats.OpenSum = row.Sum
		case models.StatusAssigned:
			stats.AssignedCount = row.Count
			stats.AssignedSum = row.Sum
		case models.StatusIgnored:
			stats.IgnoredCount = row.Count
			stats.IgnoredSum = row.Sum
		}
	}
	return stats, nil
}
