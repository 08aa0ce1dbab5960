package outbox

import "context"

// Repository defines the interface for outbox event persistence
type Repository interface {
	// SaveAll saves events. Called inside the transaction of the state change.
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns unpublished events that still have retries left, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// FindByAggregateID returns all events of one box, oldest first
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}
