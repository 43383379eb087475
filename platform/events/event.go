// Package events provides an in-process event bus. Captured calls, onboarded
// managers and finished imports are published on it; reminders and metrics
// subscribe.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every published value.
type Event interface {
	// EventName is the subscription key, e.g. "calls.captured".
	EventName() string
	// EventID identifies one publication in logs.
	EventID() string
	OccurredAt() time.Time
}

// BaseEvent carries the id and timestamp. Embed it and add EventName.
type BaseEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventID() string { return e.ID }

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh id and the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.NewString(), Timestamp: time.Now()}
}

// Handler reacts to one event. A returned error is logged by the bus; it
// never reaches the publisher of an asynchronous Publish.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed under their name.
type Bus interface {
	// Publish runs handlers on their own goroutines and returns immediately.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
