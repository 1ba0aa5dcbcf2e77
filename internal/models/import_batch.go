package models

import (
	"time"

	"github.com/google/uuid"
)

// Import batch statuses.
const (
	BatchCompleted = "completed"
	BatchAborted   = "aborted"
)

// ImportBatch records one call to the feed importer for audit purposes.
type ImportBatch struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceModule      string    `gorm:"index" json:"source_module"`
	Imported          int       `json:"imported"`
	SkippedDuplicates int       `json:"skipped_duplicates"`
	Failed            int       `json:"failed"`
	Status            string    `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`
}
