package events

import (
	"context"
	"time"
)

// Routing keys for appointment lifecycle events.
const (
	AppointmentCreated   = "appointment.created"
	AppointmentConfirmed = "appointment.confirmed"
	AppointmentCancelled = "appointment.cancelled"
	AppointmentWaiting   = "appointment.waiting"
	AppointmentCompleted = "appointment.completed"
)

// Event is the envelope published for every domain change.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher emits domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, evt Event) error { return nil }
func (NopPublisher) Close() error                                 { return nil }
