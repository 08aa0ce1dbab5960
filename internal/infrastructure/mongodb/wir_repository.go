package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dubox-platform/production-service/internal/domain"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
)

// WIRCollection holds one inspection history per box checkpoint
const WIRCollection = "wir_histories"

// WIRRepository implements domain.WIRRepository for MongoDB
type WIRRepository struct {
	client     *pkgmongo.InstrumentedClient
	collection *mongo.Collection
}

// NewWIRRepository creates a new inspection history repository
func NewWIRRepository(client *pkgmongo.InstrumentedClient) *WIRRepository {
	return &WIRRepository{
		client:     client,
		collection: client.Collection(WIRCollection),
	}
}

// EnsureIndexes creates the history indexes
func (r *WIRRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "boxId", Value: 1}, {Key: "activityCode", Value: 1}}, Options: options.Index().SetName("idx_box_activity")},
		{Keys: bson.D{{Key: "attempts.status", Value: 1}}, Options: options.Index().SetName("idx_attempt_status")},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create wir indexes: %w", err)
	}
	return nil
}

// Save inserts or replaces a history with the same versioning rule as progress records
func (r *WIRRepository) Save(ctx context.Context, history *domain.WIRHistory) error {
	doc := *history
	doc.Version = history.Version + 1

	conflict, err := saveVersioned(ctx, r.client, r.collection, WIRCollection, history.ID, history.Version, &doc)
	if err != nil {
		return translate(fmt.Errorf("failed to save wir history: %w", err))
	}
	if conflict {
		return domain.ErrConcurrentUpdate
	}
	history.Version = doc.Version
	return nil
}

// FindByBoxAndActivity retrieves the history of one checkpoint
func (r *WIRRepository) FindByBoxAndActivity(ctx context.Context, boxID, activityCode string) (*domain.WIRHistory, error) {
	var history domain.WIRHistory
	err := r.client.Exec(ctx, WIRCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": domain.WIRHistoryID(boxID, activityCode)}).Decode(&history)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("failed to find wir history: %w", err))
	}
	return &history, nil
}

// FindByBoxID retrieves every history of a box
func (r *WIRRepository) FindByBoxID(ctx context.Context, boxID string) ([]*domain.WIRHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "activityCode", Value: 1}})
	return r.find(ctx, bson.M{"boxId": boxID}, opts)
}

// FindPending retrieves histories whose latest attempt is open or submitted
func (r *WIRRepository) FindPending(ctx context.Context) ([]*domain.WIRHistory, error) {
	filter := bson.M{
		"attempts.status": bson.M{"$in": bson.A{domain.WIROpen, domain.WIRSubmitted}},
		"$expr": bson.M{
			"$in": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$attempts.status", -1}},
				bson.A{domain.WIROpen, domain.WIRSubmitted},
			},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *WIRRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.WIRHistory, error) {
	var histories []*domain.WIRHistory
	err := r.client.Exec(ctx, WIRCollection, "find", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &histories)
	})
	if err != nil {
		return nil, translate(fmt.Errorf("failed to find wir histories: %w", err))
	}
	return histories, nil
}

var _ domain.WIRRepository = (*WIRRepository)(nil)
