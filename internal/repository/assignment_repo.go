package repository

import (
	"errors"

	"zahlungsabgleich-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ActiveByTransaction returns the active assignment for a transaction, or
// nil when none exists.
func (r *AssignmentRepository) ActiveByTransaction(txID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.Where("transaction_id = ? AND active = ?", txID, true).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ActiveByReceivable returns the active assignment targeting a receivable,
// or nil when none exists.
func (r *AssignmentRepository) ActiveByReceivable(kind string, receivableID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.
		Where("receivable_kind = ? AND receivable_id = ? AND active = ?", kind, receivableID, true).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
