// Package eventbus publishes and consumes workflow definition events.
package eventbus

import (
	"context"

	"github.com/pipecd-crm/wfm/pkg/events"
)

// Event is any definition change that can be put on the bus.
type Event interface {
	GetType() events.EventType
}

// EventPublisher emits committed changes keyed by workflow ID. Partitioned transports
// keep the events of one key in order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the concrete event type registered for its EventType.
type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
