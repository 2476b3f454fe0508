package application

import (
	"context"
	"time"

	"github.com/example/hall-booking/internal/events"
)

// BookingEvent is the payload of every booking.* topic.
type BookingEvent struct {
	Booking   Booking
	ActorID   string
	ActorRole Role
	Reason    string
}

// UserEvent is the payload of user.approved and user.rejected.
type UserEvent struct {
	User    User
	ActorID string
	Reason  string
}

// MaintenanceEvent is the payload of hall.maintenance. Affected lists the
// pending and approved bookings from today on.
type MaintenanceEvent struct {
	Hall     Hall
	Affected []Booking
}

// AnnouncementEvent is the payload of system.announcement.
type AnnouncementEvent struct {
	Title    string
	Message  string
	Audience *Role
	ActorID  string
}

// publish hands event to the bus after the state change has committed.
// A nil publisher drops the event.
func publish(ctx context.Context, publisher EventPublisher, topic events.Topic, at time.Time, payload any) {
	if publisher == nil {
		return
	}
	publisher.Publish(ctx, events.Event{Topic: topic, OccurredAt: at, Payload: payload})
}
