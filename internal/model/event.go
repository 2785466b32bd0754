package model

import "time"

// ReservationEventType names a committed reservation state change.
type ReservationEventType string

const (
	EventReservationCreated   ReservationEventType = "reservation.created"
	EventReservationConfirmed ReservationEventType = "reservation.confirmed"
	EventReservationCancelled ReservationEventType = "reservation.cancelled"
	EventReservationExpired   ReservationEventType = "reservation.expired"
)

// ReservationEvent carries enough for consumers to notify or log without
// reading the database again.
type ReservationEvent struct {
	Type          ReservationEventType `json:"type"`
	ReservationID int64                `json:"reservation_id"`
	ClientID      int64                `json:"client_id"`
	SessionID     int64                `json:"session_id"`
	SessionDate   string               `json:"session_date"`
	SessionTitle  string               `json:"session_title,omitempty"`
	Status        ReservationStatus    `json:"status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}
