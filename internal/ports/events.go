package ports

import "context"

// EventPublisher is the outbound operational-event publish port. The
// partition key carries the order or location id the event belongs to, so
// broker consumers see one entity's events in order.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}
