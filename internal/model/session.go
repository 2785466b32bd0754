package model

import "time"

// SessionDateLayout is the storage and wire layout of Session.Date.
const SessionDateLayout = "2006-01-02"

// Session is a scheduled, capacity-bounded training slot of one trainer.
// Date is a calendar date without a zone. Occupancy is never stored here;
// it is counted from reservations.
type Session struct {
	ID        int64     `gorm:"primaryKey"`
	TrainerID int64     `gorm:"index;not null"`
	Title     string    `gorm:"size:256"`
	Date      string    `gorm:"size:10;index;not null"`
	Capacity  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Trainer Trainer `gorm:"constraint:OnDelete:CASCADE"`
}
