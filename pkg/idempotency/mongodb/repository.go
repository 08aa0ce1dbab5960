package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dubox-platform/production-service/pkg/idempotency"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
)

// CollectionName is the idempotency key collection
const CollectionName = "idempotency_keys"

// KeyRepository implements idempotency.Repository for MongoDB
type KeyRepository struct {
	client     *pkgmongo.InstrumentedClient
	collection *mongo.Collection
}

// NewKeyRepository creates a new MongoDB idempotency repository
func NewKeyRepository(client *pkgmongo.InstrumentedClient) *KeyRepository {
	return &KeyRepository{
		client:     client,
		collection: client.Collection(CollectionName),
	}
}

// Acquire takes the key when it is new, expired, released or held by a
// stale lock. Otherwise the unique _id makes the upsert fail and the
// existing record is returned.
func (r *KeyRepository) Acquire(ctx context.Context, rec *idempotency.Record, lockTimeout time.Duration) (*idempotency.Record, bool, error) {
	now := rec.CreatedAt
	stored := *rec
	stored.LockedAt = &now
	stored.CompletedAt = nil
	stored.StatusCode = 0
	stored.ContentType = ""
	stored.Body = nil

	filter := bson.M{
		"_id": rec.ID,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$lte": now}},
			bson.M{"completedAt": nil, "lockedAt": nil},
			bson.M{"completedAt": nil, "lockedAt": bson.M{"$lte": now.Add(-lockTimeout)}},
		},
	}
	opts := options.Replace().SetUpsert(true)

	err := r.client.Exec(ctx, CollectionName, "acquire", func(ctx context.Context) error {
		_, err := r.collection.ReplaceOne(ctx, filter, &stored, opts)
		return err
	})
	if err == nil {
		return &stored, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}

	var existing idempotency.Record
	err = r.client.Exec(ctx, CollectionName, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": rec.ID}).Decode(&existing)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		// expired and removed between the two calls
		return r.Acquire(ctx, rec, lockTimeout)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	return &existing, false, nil
}

// Complete implements idempotency.Repository
func (r *KeyRepository) Complete(ctx context.Context, id string, statusCode int, contentType string, body []byte, completedAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"statusCode":  statusCode,
			"contentType": contentType,
			"body":        body,
			"completedAt": completedAt,
		},
		"$unset": bson.M{"lockedAt": ""},
	}
	return r.client.Exec(ctx, CollectionName, "complete", func(ctx context.Context) error {
		_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
		return err
	})
}

// Release implements idempotency.Repository
func (r *KeyRepository) Release(ctx context.Context, id string) error {
	filter := bson.M{"_id": id, "completedAt": nil}
	update := bson.M{"$unset": bson.M{"lockedAt": ""}}
	return r.client.Exec(ctx, CollectionName, "release", func(ctx context.Context) error {
		_, err := r.collection.UpdateOne(ctx, filter, update)
		return err
	})
}

// EnsureIndexes creates the TTL index that expires old keys
func (r *KeyRepository) EnsureIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
	}
	return r.client.Exec(ctx, CollectionName, "createIndexes", func(ctx context.Context) error {
		_, err := r.collection.Indexes().CreateOne(ctx, index)
		return err
	})
}

var _ idempotency.Repository = (*KeyRepository)(nil)
