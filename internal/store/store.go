package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"training-booking-backend/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// SessionFilter narrows a session search. Zero values mean "no filter".
type SessionFilter struct {
	From      string // YYYY-MM-DD lower bound, inclusive
	Specialty string // case-insensitive substring of the trainer's specialty
	TrainerID *int64
}

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	// LockSession reads a session and holds its row lock until the transaction ends.
	LockSession(ctx context.Context, id int64) (*model.Session, error)
	CountOccupancy(ctx context.Context, sessionIDs ...int64) (map[int64]int64, error)

	HasActiveReservation(ctx context.Context, clientID, sessionID int64) (bool, error)
	CreateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	LockReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListClientReservations(ctx context.Context, clientID int64, status *model.ReservationStatus) ([]model.Reservation, error)
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Reservation, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, clientID int64, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, clientID int64, endpoint string) error
	ListClientSubscriptions(ctx context.Context, clientID int64) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// forUpdate adds a row lock where the dialect has one. SQLite runs with a
// single connection, so its transactions are already exclusive.
func (s *gormStore) forUpdate(q *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *gormStore) FindSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	q := s.db.WithContext(ctx).
		Model(&model.Session{}).
		Joins("JOIN trainers ON trainers.id = sessions.trainer_id").
		Preload("Trainer")

	if filter.From != "" {
		q = q.Where("sessions.date >= ?", filter.From)
	}
	if filter.Specialty != "" {
		q = q.Where("LOWER(trainers.specialty) LIKE ?", "%"+strings.ToLower(filter.Specialty)+"%")
	}
	if filter.TrainerID != nil {
		q = q.Where("sessions.trainer_id = ?", *filter.TrainerID)
	}

	var sessions []model.Session
	if err := q.Order("sessions.date ASC").Order("sessions.id ASC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	if err := s.db.WithContext(ctx).Preload("Trainer").First(&session, id).Error; err != nil {
		return nil, wrapLookup(err, "session", id)
	}
	return &session, nil
}

func (s *gormStore) LockSession(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	if err := s.forUpdate(s.db.WithContext(ctx)).First(&session, id).Error; err != nil {
		return nil, wrapLookup(err, "session", id)
	}
	return &session, nil
}

type occupancyRow struct {
	SessionID int64
	Count     int64
}

// CountOccupancy returns the number of active reservations per session.
// Sessions without any active reservation are absent from the map.
func (s *gormStore) CountOccupancy(ctx context.Context, sessionIDs ...int64) (map[int64]int64, error) {
	occupancy := make(map[int64]int64, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return occupancy, nil
	}

	var rows []occupancyRow
	err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Select("session_id, COUNT(*) AS count").
		Where("session_id IN ? AND status IN ?", sessionIDs, model.ActiveStatuses).
		Group("session_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count occupancy: %w", err)
	}

	for _, r := range rows {
		occupancy[r.SessionID] = r.Count
	}
	return occupancy, nil
}

func (s *gormStore) HasActiveReservation(ctx context.Context, clientID, sessionID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("client_id = ? AND session_id = ? AND status IN ?", clientID, sessionID, model.ActiveStatuses).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check active reservation for client %d session %d: %w", clientID, sessionID, err)
	}
	return n > 0, nil
}

func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create reservation for client %d session %d: %w", r.ClientID, r.SessionID, err)
	}
	return nil
}

// GetReservation loads a reservation with its client, session and trainer.
func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Session.Trainer").
		First(&r, id).Error
	if err != nil {
		return nil, wrapLookup(err, "reservation", id)
	}
	return &r, nil
}

func (s *gormStore) LockReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.forUpdate(s.db.WithContext(ctx)).First(&r, id).Error; err != nil {
		return nil, wrapLookup(err, "reservation", id)
	}
	return &r, nil
}

func (s *gormStore) ListClientReservations(ctx context.Context, clientID int64, status *model.ReservationStatus) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Session.Trainer").
		Where("client_id = ?", clientID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var reservations []model.Reservation
	if err := q.Order("created_at DESC").Order("id DESC").Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations for client %d: %w", clientID, err)
	}
	return reservations, nil
}

// UpdateReservation writes the mutable lifecycle columns of r.
func (s *gormStore) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	res := s.db.WithContext(ctx).
		Model(r).
		Select("status", "payment_ref", "cancelled_at", "updated_at").
		Updates(r)
	if res.Error != nil {
		return fmt.Errorf("failed to update reservation %d: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reservation %d: %w", r.ID, ErrNotFound)
	}
	return nil
}

// FindStalePending returns PENDING reservations created before the cutoff,
// oldest first.
func (s *gormStore) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]model.Reservation, error) {
	var reservations []model.Reservation
	q := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.StatusPending, createdBefore).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale pending reservations: %w", err)
	}
	return reservations, nil
}

// SaveSubscription creates or replaces the subscription for an endpoint.
// A browser endpoint re-registered under another client moves to that client.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, clientID int64, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND client_id = ?", endpoint, clientID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, clientID int64, endpoint string) error {
	res := s.db.WithContext(ctx).
		Where("endpoint = ? AND client_id = ?", endpoint, clientID).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListClientSubscriptions(ctx context.Context, clientID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for client %d: %w", clientID, err)
	}
	return subs, nil
}

func wrapLookup(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}
