package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"training-booking-backend/internal/model"
	"training-booking-backend/internal/store"
)

// ErrQueueFull is returned by Notify when every worker is busy and the
// buffer is full. The event is dropped.
var ErrQueueFull = errors.New("notification queue is full")

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload a service worker receives.
type Message struct {
	Type          model.ReservationEventType `json:"type"`
	Title         string                     `json:"title"`
	Body          string                     `json:"body"`
	ReservationID int64                      `json:"reservation_id"`
	SessionID     int64                      `json:"session_id"`
}

// WorkerPool manages a pool of workers that push reservation events to the
// browsers the client registered.
type WorkerPool struct {
	size    int
	jobs    chan model.ReservationEvent
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.ReservationEvent, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case event := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, event)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues an event, blocking while the buffer is full.
func (wp *WorkerPool) Dispatch(event model.ReservationEvent) {
	wp.jobs <- event
}

// Notify queues an event without blocking the caller.
func (wp *WorkerPool) Notify(_ context.Context, event model.ReservationEvent) error {
	select {
	case wp.jobs <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, event model.ReservationEvent) {
	subscriptions, err := wp.store.ListClientSubscriptions(ctx, event.ClientID)
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.Int64("client_id", event.ClientID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(buildMessage(event))
	if err != nil {
		wp.log.Error("failed to encode push message", zap.Error(err))
		return
	}

	wp.log.Debug("sending push notifications",
		zap.Int("count", len(subscriptions)),
		zap.String("type", string(event.Type)),
		zap.Int64("reservation_id", event.ReservationID))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("failed to send push notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// The push service no longer knows this browser.
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.ClientID, sub.Endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
			wp.log.Warn("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}

func buildMessage(event model.ReservationEvent) Message {
	label := event.SessionTitle
	if label == "" {
		label = fmt.Sprintf("session %d", event.SessionID)
	}
	if event.SessionDate != "" {
		label = fmt.Sprintf("%s on %s", label, event.SessionDate)
	}

	msg := Message{Type: event.Type, ReservationID: event.ReservationID, SessionID: event.SessionID}
	switch event.Type {
	case model.EventReservationCreated:
		if event.Status == model.StatusPending {
			msg.Title = "Place held"
			msg.Body = fmt.Sprintf("Your place for %s is held until payment.", label)
		} else {
			msg.Title = "Booking confirmed"
			msg.Body = fmt.Sprintf("You are booked for %s.", label)
		}
	case model.EventReservationConfirmed:
		msg.Title = "Payment received"
		msg.Body = fmt.Sprintf("Your booking for %s is confirmed.", label)
	case model.EventReservationCancelled:
		msg.Title = "Booking cancelled"
		msg.Body = fmt.Sprintf("Your booking for %s was cancelled.", label)
	case model.EventReservationExpired:
		msg.Title = "Hold expired"
		msg.Body = fmt.Sprintf("Your unpaid hold for %s has expired.", label)
	default:
		msg.Title = "Booking update"
		msg.Body = label
	}
	return msg
}
