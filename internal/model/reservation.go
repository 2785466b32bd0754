package model

import (
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

// ActiveStatuses are the statuses that hold a place in a session.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

var validTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// ParseReservationStatus converts a string to a ReservationStatus.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	status := ReservationStatus(s)
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("invalid reservation status: %q", s)
	}
	return status, nil
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsActive reports whether a reservation in this status occupies a place.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation is a client's claim on a session. Rows are never deleted;
// cancellation is a status change.
type Reservation struct {
	ID          int64             `gorm:"primaryKey"`
	ClientID    int64             `gorm:"index;not null"`
	SessionID   int64             `gorm:"index;not null"`
	Status      ReservationStatus `gorm:"size:16;index;not null"`
	RequestedAt time.Time         `gorm:"not null"`
	Notes       string            `gorm:"size:1024"`
	PaymentRef  *string           `gorm:"size:128"`
	CancelledAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`

	// Associations
	Client  Client  `gorm:"constraint:OnDelete:CASCADE"`
	Session Session `gorm:"constraint:OnDelete:CASCADE"`
}
