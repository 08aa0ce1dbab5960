package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
	"github.com/dubox-platform/production-service/pkg/outbox"
)

// CollectionName is the outbox collection
const CollectionName = "outbox_events"

// OutboxRepository implements outbox.Repository for MongoDB
type OutboxRepository struct {
	client     *pkgmongo.InstrumentedClient
	collection *mongo.Collection
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(client *pkgmongo.InstrumentedClient) *OutboxRepository {
	return &OutboxRepository{
		client:     client,
		collection: client.Collection(CollectionName),
	}
}

// SaveAll saves multiple outbox events in a single operation
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i, event := range events {
		docs[i] = event
	}

	return r.client.Exec(ctx, CollectionName, "insertMany", func(ctx context.Context) error {
		if _, err := r.collection.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to save outbox events: %w", err)
		}
		return nil
	})
}

// FindUnpublished retrieves unpublished events up to the specified limit
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	filter := bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit))

	var events []*outbox.OutboxEvent
	err := r.client.Exec(ctx, CollectionName, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return fmt.Errorf("failed to find unpublished events: %w", err)
		}
		defer cursor.Close(ctx)

		if err := cursor.All(ctx, &events); err != nil {
			return fmt.Errorf("failed to decode outbox events: %w", err)
		}
		return nil
	})
	return events, err
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	update := bson.M{"$set": bson.M{"publishedAt": time.Now().UTC()}}
	return r.updateOne(ctx, eventID, update)
}

// IncrementRetry increments the retry count and updates last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	update := bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	}
	return r.updateOne(ctx, eventID, update)
}

func (r *OutboxRepository) updateOne(ctx context.Context, eventID string, update bson.M) error {
	return r.client.Exec(ctx, CollectionName, "updateOne", func(ctx context.Context) error {
		result, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update)
		if err != nil {
			return fmt.Errorf("failed to update outbox event: %w", err)
		}
		if result.MatchedCount == 0 {
			return fmt.Errorf("event not found: %s", eventID)
		}
		return nil
	})
}

// FindByAggregateID retrieves all events for a specific box
func (r *OutboxRepository) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	var events []*outbox.OutboxEvent
	err := r.client.Exec(ctx, CollectionName, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"aggregateId": aggregateID}, opts)
		if err != nil {
			return fmt.Errorf("failed to find events by aggregate ID: %w", err)
		}
		defer cursor.Close(ctx)

		if err := cursor.All(ctx, &events); err != nil {
			return fmt.Errorf("failed to decode outbox events: %w", err)
		}
		return nil
	})
	return events, err
}

// EnsureIndexes creates the indexes the publisher queries rely on
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_unpublished"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregate"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
