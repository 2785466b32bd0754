package model

import "time"

// Trainer owns sessions. Specialty is the free-text category clients search on.
type Trainer struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	DisplayName string    `gorm:"size:256;not null" json:"display_name"`
	Specialty   string    `gorm:"size:128;index" json:"specialty"`
	CreatedAt   time.Time `gorm:"not null" json:"-"`
	UpdatedAt   time.Time `gorm:"not null" json:"-"`
}

// Client is a person who books sessions.
type Client struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	DisplayName string    `gorm:"size:256;not null" json:"display_name"`
	Email       string    `gorm:"uniqueIndex;size:256" json:"email,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"-"`
	UpdatedAt   time.Time `gorm:"not null" json:"-"`
}
