package booking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"training-booking-backend/internal/model"
	"training-booking-backend/internal/parse"
	"training-booking-backend/internal/store"
)

// expiryBatchSize caps how many stale holds one sweep cancels.
const expiryBatchSize = 100

// Settings are the tunable booking rules.
type Settings struct {
	MinNotice     time.Duration
	InitialStatus model.ReservationStatus
	PaymentWindow time.Duration
}

// Engine decides whether reservations may be created, confirmed or cancelled.
// It holds no booking state; every check reads the store.
type Engine struct {
	store    store.Store
	settings Settings
	clock    Clock
	notifier Notifier
	log      *zap.Logger
}

// NewEngine wires an engine. A nil clock, notifier or logger falls back to
// the wall clock, no notifications and a no-op logger.
func NewEngine(s store.Store, settings Settings, clock Clock, notifier Notifier, log *zap.Logger) *Engine {
	if settings.InitialStatus == "" {
		settings.InitialStatus = model.StatusConfirmed
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: s, settings: settings, clock: clock, notifier: notifier, log: log}
}

// CreateRequest is the input of CreateReservation.
type CreateRequest struct {
	ClientID    int64
	SessionID   int64
	RequestedAt time.Time
	Notes       string
}

// SearchAvailableSessions returns sessions matching the filter that still
// have at least one free place, ordered by date then id.
func (e *Engine) SearchAvailableSessions(ctx context.Context, filter store.SessionFilter) ([]SessionAvailability, error) {
	sessions, err := e.store.FindSessions(ctx, filter)
	if err != nil {
		return nil, e.fail("search sessions", err)
	}

	ids := make([]int64, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	occupancy, err := e.store.CountOccupancy(ctx, ids...)
	if err != nil {
		return nil, e.fail("count occupancy", err)
	}

	results := make([]SessionAvailability, 0, len(sessions))
	for _, s := range sessions {
		taken := int(occupancy[s.ID])
		remaining := remainingPlaces(s.Capacity, taken)
		if remaining == 0 {
			continue
		}
		results = append(results, SessionAvailability{
			ID:        s.ID,
			Title:     s.Title,
			Date:      s.Date,
			Capacity:  s.Capacity,
			Occupancy: taken,
			Remaining: remaining,
			Trainer:   trainerInfo(s.Trainer),
		})
	}
	return results, nil
}

// CreateReservation books a place for a client. Checks run in order and the
// first failure is returned with nothing written.
func (e *Engine) CreateReservation(ctx context.Context, req CreateRequest) (*ReservationView, error) {
	now := e.clock.Now()
	if !req.RequestedAt.After(now) {
		return nil, newError(KindPastBooking, "requested time %s is not in the future", req.RequestedAt.Format(time.RFC3339))
	}
	if req.RequestedAt.Before(now.Add(e.settings.MinNotice)) {
		return nil, newError(KindInsufficientNotice, "reservations need at least %s notice", e.settings.MinNotice)
	}

	var created model.Reservation
	var session *model.Session
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		session, err = tx.LockSession(ctx, req.SessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindSessionNotFound, "session %d not found", req.SessionID)
			}
			return e.fail("load session", err)
		}

		if date := parse.CalendarDate(req.RequestedAt); date != session.Date {
			return newError(KindDateMismatch, "requested date %s does not match session date %s", date, session.Date)
		}

		remaining, err := e.computeRemaining(ctx, tx, session)
		if err != nil {
			return err
		}
		if remaining <= 0 {
			return capacityExceeded(session.ID, 0)
		}

		conflict, err := e.hasActiveConflict(ctx, tx, req.ClientID, session.ID)
		if err != nil {
			return err
		}
		if conflict {
			return duplicateReservation(req.ClientID, session.ID)
		}

		created = model.Reservation{
			ClientID:    req.ClientID,
			SessionID:   session.ID,
			Status:      e.settings.InitialStatus,
			RequestedAt: req.RequestedAt.UTC(),
			Notes:       req.Notes,
			CreatedAt:   now.UTC(),
			UpdatedAt:   now.UTC(),
		}
		if err := tx.CreateReservation(ctx, &created); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateReservation(req.ClientID, session.ID)
			}
			return e.fail("create reservation", err)
		}
		return nil
	})
	if err != nil {
		return nil, e.asBookingError(err)
	}

	full, err := e.store.GetReservation(ctx, created.ID)
	if err != nil {
		return nil, e.fail("reload reservation", err)
	}

	e.log.Info("reservation created",
		zap.Int64("reservation_id", created.ID),
		zap.Int64("client_id", created.ClientID),
		zap.Int64("session_id", created.SessionID),
		zap.String("status", string(created.Status)))
	e.emit(ctx, model.EventReservationCreated, full, &full.Session)
	return newReservationView(full), nil
}

// ListClientReservations returns the client's reservations, newest first.
func (e *Engine) ListClientReservations(ctx context.Context, clientID int64, status *model.ReservationStatus) ([]ReservationView, error) {
	reservations, err := e.store.ListClientReservations(ctx, clientID, status)
	if err != nil {
		return nil, e.fail("list reservations", err)
	}
	views := make([]ReservationView, len(reservations))
	for i := range reservations {
		views[i] = *newReservationView(&reservations[i])
	}
	return views, nil
}

// GetReservation returns one reservation owned by the requesting client.
func (e *Engine) GetReservation(ctx context.Context, reservationID, clientID int64) (*ReservationView, error) {
	r, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reservationNotFound(reservationID)
		}
		return nil, e.fail("load reservation", err)
	}
	if r.ClientID != clientID {
		return nil, notOwner(reservationID)
	}
	return newReservationView(r), nil
}

// CancelReservation moves an owned reservation to CANCELLED. The freed place
// shows up on the next occupancy read.
func (e *Engine) CancelReservation(ctx context.Context, reservationID, clientID int64) error {
	var r *model.Reservation
	var session *model.Session
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		r, err = e.lockOwned(ctx, tx, reservationID, clientID)
		if err != nil {
			return err
		}
		if r.Status == model.StatusCancelled {
			return newError(KindAlreadyCancelled, "reservation %d is already cancelled", reservationID)
		}
		if !r.Status.CanTransitionTo(model.StatusCancelled) {
			return invalidTransition(r, model.StatusCancelled)
		}

		now := e.clock.Now().UTC()
		r.Status = model.StatusCancelled
		r.CancelledAt = &now
		r.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return e.fail("cancel reservation", err)
		}

		session, err = tx.GetSession(ctx, r.SessionID)
		if err != nil {
			return e.fail("load session", err)
		}
		return nil
	})
	if err != nil {
		return e.asBookingError(err)
	}

	e.log.Info("reservation cancelled",
		zap.Int64("reservation_id", r.ID),
		zap.Int64("client_id", r.ClientID),
		zap.Int64("session_id", r.SessionID))
	e.emit(ctx, model.EventReservationCancelled, r, session)
	return nil
}

// ConfirmReservation moves an owned PENDING reservation to CONFIRMED and
// records the payment reference, if any.
func (e *Engine) ConfirmReservation(ctx context.Context, reservationID, clientID int64, paymentRef string) (*ReservationView, error) {
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		r, err := e.lockOwned(ctx, tx, reservationID, clientID)
		if err != nil {
			return err
		}
		switch {
		case r.Status == model.StatusCancelled:
			return newError(KindAlreadyCancelled, "reservation %d is cancelled", reservationID)
		case !r.Status.CanTransitionTo(model.StatusConfirmed):
			return invalidTransition(r, model.StatusConfirmed)
		}

		r.Status = model.StatusConfirmed
		if paymentRef != "" {
			r.PaymentRef = &paymentRef
		}
		r.UpdatedAt = e.clock.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return e.fail("confirm reservation", err)
		}
		return nil
	})
	if err != nil {
		return nil, e.asBookingError(err)
	}

	full, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, e.fail("reload reservation", err)
	}

	e.log.Info("reservation confirmed",
		zap.Int64("reservation_id", full.ID),
		zap.Int64("client_id", full.ClientID))
	e.emit(ctx, model.EventReservationConfirmed, full, &full.Session)
	return newReservationView(full), nil
}

// ExpirePendingReservations cancels PENDING reservations older than the
// payment window and reports how many it cancelled. A failure on one
// reservation is logged and does not stop the sweep.
func (e *Engine) ExpirePendingReservations(ctx context.Context) (int, error) {
	cutoff := e.clock.Now().Add(-e.settings.PaymentWindow).UTC()
	stale, err := e.store.FindStalePending(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return 0, e.fail("find stale reservations", err)
	}

	expired := 0
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := e.expireOne(ctx, candidate.ID, cutoff)
		if err != nil {
			e.log.Warn("failed to expire reservation", zap.Int64("reservation_id", candidate.ID), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (e *Engine) expireOne(ctx context.Context, reservationID int64, cutoff time.Time) (bool, error) {
	var r *model.Reservation
	var session *model.Session
	expired := false
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		r, err = tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		// Confirmed or cancelled since the scan.
		if r.Status != model.StatusPending || !r.CreatedAt.Before(cutoff) {
			return nil
		}

		now := e.clock.Now().UTC()
		r.Status = model.StatusCancelled
		r.CancelledAt = &now
		r.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		if session, err = tx.GetSession(ctx, r.SessionID); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil || !expired {
		return false, err
	}

	e.log.Info("pending reservation expired",
		zap.Int64("reservation_id", r.ID),
		zap.Int64("client_id", r.ClientID))
	e.emit(ctx, model.EventReservationExpired, r, session)
	return true, nil
}

// computeRemaining counts active reservations of the session and returns
// the free places, never below zero.
func (e *Engine) computeRemaining(ctx context.Context, st store.Store, session *model.Session) (int, error) {
	occupancy, err := st.CountOccupancy(ctx, session.ID)
	if err != nil {
		return 0, e.fail("count occupancy", err)
	}
	return remainingPlaces(session.Capacity, int(occupancy[session.ID])), nil
}

// hasActiveConflict reports whether the client already holds an active
// reservation for the session.
func (e *Engine) hasActiveConflict(ctx context.Context, st store.Store, clientID, sessionID int64) (bool, error) {
	conflict, err := st.HasActiveReservation(ctx, clientID, sessionID)
	if err != nil {
		return false, e.fail("check duplicate", err)
	}
	return conflict, nil
}

func (e *Engine) lockOwned(ctx context.Context, tx store.Store, reservationID, clientID int64) (*model.Reservation, error) {
	r, err := tx.LockReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reservationNotFound(reservationID)
		}
		return nil, e.fail("load reservation", err)
	}
	if r.ClientID != clientID {
		return nil, notOwner(reservationID)
	}
	return r, nil
}

// emit hands a committed change to the notifiers. Delivery failures are
// logged only.
func (e *Engine) emit(ctx context.Context, typ model.ReservationEventType, r *model.Reservation, session *model.Session) {
	event := model.ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		ClientID:      r.ClientID,
		SessionID:     r.SessionID,
		Status:        r.Status,
		OccurredAt:    e.clock.Now().UTC(),
	}
	if session != nil {
		event.SessionDate = session.Date
		event.SessionTitle = session.Title
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.log.Warn("failed to deliver reservation event",
			zap.String("type", string(typ)),
			zap.Int64("reservation_id", r.ID),
			zap.Error(err))
	}
}

// fail logs a store failure and hides it behind a QUERY error.
func (e *Engine) fail(op string, err error) *Error {
	e.log.Error("booking store failure", zap.String("op", op), zap.Error(err))
	return queryError(op, err)
}

func remainingPlaces(capacity, occupancy int) int {
	return max(0, capacity-occupancy)
}

func (e *Engine) asBookingError(err error) error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return e.fail("transaction", err)
}

func duplicateReservation(clientID, sessionID int64) *Error {
	return newError(KindDuplicateReservation, "client %d already holds an active reservation for session %d", clientID, sessionID)
}

func reservationNotFound(id int64) *Error {
	return newError(KindReservationNotFound, "reservation %d not found", id)
}

func notOwner(id int64) *Error {
	return newError(KindNotOwner, "reservation %d belongs to another client", id)
}

func invalidTransition(r *model.Reservation, target model.ReservationStatus) *Error {
	return newError(KindInvalidTransition, "reservation %d cannot move from %s to %s", r.ID, r.Status, target)
}
