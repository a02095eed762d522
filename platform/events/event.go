// Package events is the in-process event bus modules use to react to each
// other without direct imports. This is part of the platform layer and
// contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is anything published on the bus. EventName is the subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the publish timestamp. Embed it in concrete events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps an event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one published event. A returned error is logged by the
// bus and never reaches the publisher.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans events out to subscribers. Publish does not block on handlers;
// Wait drains the ones already started, for shutdown and tests.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventName string, handler Handler)
	Wait()
}
