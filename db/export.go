package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Export is one file written by a fetch or reformat run.
type Export struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Provider  string    `gorm:"index" json:"provider"`
	Endpoint  string    `json:"endpoint"`
	Records   int       `json:"records"`
	Pages     int       `json:"pages"`
	Truncated bool      `json:"truncated"`
	FilePath  string    `json:"file_path"`
	Format    string    `json:"format"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a random id to rows that have none.
func (e *Export) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
