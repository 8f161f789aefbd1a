package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher delivers a named event to whoever is listening. Implementations
// are fire-and-forget: a returned error means the event could not be handed
// off, never that a listener missed it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, eventType string, payload interface{}) error

func (f PublisherFunc) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return f(ctx, eventType, payload)
}
