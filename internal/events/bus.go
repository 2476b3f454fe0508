// Package events is an in-process publish/subscribe bus used to run
// post-commit side effects (notifications, audit logging) after a domain
// operation has been persisted.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/hall-booking/internal/logging"
)

// Topic names a class of domain event.
type Topic string

const (
	TopicBookingCreated     Topic = "booking.created"
	TopicBookingApproved    Topic = "booking.approved"
	TopicBookingRejected    Topic = "booking.rejected"
	TopicBookingCancelled   Topic = "booking.cancelled"
	TopicBookingCompleted   Topic = "booking.completed"
	TopicBookingReminder    Topic = "booking.reminder"
	TopicUserApproved       Topic = "user.approved"
	TopicUserRejected       Topic = "user.rejected"
	TopicHallMaintenance    Topic = "hall.maintenance"
	TopicSystemAnnouncement Topic = "system.announcement"
)

// Event is a published fact. Payload is topic specific.
type Event struct {
	Topic      Topic
	OccurredAt time.Time
	Payload    any
}

// Handler reacts to an event. Returned errors are logged and never reach the publisher.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Bus dispatches events synchronously to subscribers in registration order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Topic][]subscription
	logger   *slog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Topic][]subscription), logger: logger}
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, name string, handler Handler) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, name: name, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[topic]
			for i, sub := range subs {
				if sub.id == id {
					b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers event to every subscriber of its topic. Handler failures and
// panics are logged; they never fail the publishing operation.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.dispatch(ctx, sub, event); err != nil {
			b.loggerFor(ctx).ErrorContext(ctx, "event handler failed",
				"topic", string(event.Topic),
				"subscriber", sub.name,
				"error", err,
			)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, sub subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

func (b *Bus) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, b.logger)
}
