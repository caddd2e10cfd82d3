package database

import "time"

// Prescription is the persisted form of a prescription record.
type Prescription struct {
	ID        string    `gorm:"size:36;primaryKey"`
	RawText   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
