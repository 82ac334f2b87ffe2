// Package events provides the in-process event bus the engine publishes
// committed changes on. It carries no pipeline types.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventName is the routing key subscribers register for.
	EventName() string
	// EventID identifies one occurrence; consumers use it to drop redeliveries.
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent stamps an id and a UTC timestamp. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"occurredAt"`
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent returns a fresh id stamped with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus delivers events to the handlers subscribed to their name.
type Bus interface {
	// Publish dispatches asynchronously and never blocks the caller on handlers.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers inline and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
