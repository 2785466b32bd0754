// Package events publishes committed reservation changes to RabbitMQ so other
// services can react without polling the database.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"training-booking-backend/internal/model"
)

const (
	queueSize      = 256
	dialTimeout    = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrQueueFull is returned by Notify when the publish buffer is full. The
// event is dropped.
var ErrQueueFull = errors.New("event queue is full")

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc opens a channel and returns a func that closes the underlying connection.
type DialFunc func(url string) (Channel, func() error, error)

// DialAMQP connects to a broker with amqp091.
func DialAMQP(url string) (Channel, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	return ch, conn.Close, nil
}

// Publisher writes reservation events as persistent JSON messages to a
// durable queue on the default exchange. Notify only queues the event; a
// background goroutine started by Start does the publishing. The connection
// is opened on first use and reopened after a failed publish.
type Publisher struct {
	url    string
	queue  string
	dial   DialFunc
	log    *zap.Logger
	events chan model.ReservationEvent

	mu        sync.Mutex
	ch        Channel
	closeConn func() error
}

// NewPublisher creates a publisher. A nil dial uses DialAMQP.
func NewPublisher(url, queue string, dial DialFunc, log *zap.Logger) *Publisher {
	if dial == nil {
		dial = DialAMQP
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		url:    url,
		queue:  queue,
		dial:   dial,
		log:    log.Named("events"),
		events: make(chan model.ReservationEvent, queueSize),
	}
}

// Start launches the goroutine that drains the queue until ctx is done.
func (p *Publisher) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case event := <-p.events:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.publish(pubCtx, event); err != nil {
				p.log.Warn("failed to publish reservation event",
					zap.String("type", string(event.Type)),
					zap.Int64("reservation_id", event.ReservationID),
					zap.Error(err))
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// Notify queues an event without blocking the caller.
func (p *Publisher) Notify(_ context.Context, event model.ReservationEvent) error {
	select {
	case p.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Publisher) publish(ctx context.Context, event model.ReservationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(event.Type),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.resetLocked()
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *Publisher) connectLocked() error {
	if p.ch != nil {
		return nil
	}

	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	p.log.Info("connected to broker", zap.String("queue", p.queue))
	p.ch, p.closeConn = ch, closeConn
	return nil
}

func (p *Publisher) resetLocked() error {
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	if p.closeConn != nil {
		if cerr := p.closeConn(); err == nil {
			err = cerr
		}
	}
	p.ch, p.closeConn = nil, nil
	return err
}
