package booking

import (
	"time"

	"training-booking-backend/internal/model"
)

// TrainerInfo is the trainer display data attached to sessions.
type TrainerInfo struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Specialty   string `json:"specialty"`
}

// SessionAvailability is a search result: a session with its live occupancy.
type SessionAvailability struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Date      string      `json:"date"`
	Capacity  int         `json:"capacity"`
	Occupancy int         `json:"occupancy"`
	Remaining int         `json:"remaining"`
	Trainer   TrainerInfo `json:"trainer"`
}

// ClientInfo is the client display data attached to reservations.
type ClientInfo struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// SessionInfo is the session display data attached to reservations.
type SessionInfo struct {
	ID      int64       `json:"id"`
	Title   string      `json:"title"`
	Date    string      `json:"date"`
	Trainer TrainerInfo `json:"trainer"`
}

// ReservationView is a reservation joined with its client, session and trainer.
type ReservationView struct {
	ID          int64                   `json:"id"`
	Status      model.ReservationStatus `json:"status"`
	RequestedAt time.Time               `json:"requested_at"`
	Notes       string                  `json:"notes,omitempty"`
	PaymentRef  *string                 `json:"payment_ref,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CancelledAt *time.Time              `json:"cancelled_at,omitempty"`
	Client      ClientInfo              `json:"client"`
	Session     SessionInfo             `json:"session"`
}

func trainerInfo(t model.Trainer) TrainerInfo {
	return TrainerInfo{ID: t.ID, DisplayName: t.DisplayName, Specialty: t.Specialty}
}

func newReservationView(r *model.Reservation) *ReservationView {
	return &ReservationView{
		ID:          r.ID,
		Status:      r.Status,
		RequestedAt: r.RequestedAt,
		Notes:       r.Notes,
		PaymentRef:  r.PaymentRef,
		CreatedAt:   r.CreatedAt,
		CancelledAt: r.CancelledAt,
		Client:      ClientInfo{ID: r.ClientID, DisplayName: r.Client.DisplayName},
		Session: SessionInfo{
			ID:      r.SessionID,
			Title:   r.Session.Title,
			Date:    r.Session.Date,
			Trainer: trainerInfo(r.Session.Trainer),
		},
	}
}
