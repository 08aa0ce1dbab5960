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

// BoxCollection holds registered boxes
const BoxCollection = "boxes"

// BoxRepository implements domain.BoxRepository for MongoDB
type BoxRepository struct {
	client     *pkgmongo.InstrumentedClient
	collection *mongo.Collection
}

// NewBoxRepository creates a new box repository
func NewBoxRepository(client *pkgmongo.InstrumentedClient) *BoxRepository {
	return &BoxRepository{
		client:     client,
		collection: client.Collection(BoxCollection),
	}
}

// EnsureIndexes creates the box indexes
func (r *BoxRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tag", Value: 1}}, Options: options.Index().SetName("idx_tag")},
		{Keys: bson.D{{Key: "boxType", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_type_created")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("idx_status")},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create box indexes: %w", err)
	}
	return nil
}

// Create inserts a new box
func (r *BoxRepository) Create(ctx context.Context, box *domain.Box) error {
	err := r.client.Exec(ctx, BoxCollection, "insertOne", func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, box)
		return err
	})
	if err != nil {
		return translate(fmt.Errorf("failed to create box: %w", err))
	}
	return nil
}

// Update replaces an existing box
func (r *BoxRepository) Update(ctx context.Context, box *domain.Box) error {
	var result *mongo.UpdateResult
	err := r.client.Exec(ctx, BoxCollection, "replaceOne", func(ctx context.Context) error {
		var err error
		result, err = r.collection.ReplaceOne(ctx, bson.M{"_id": box.ID}, box)
		return err
	})
	if err != nil {
		return translate(fmt.Errorf("failed to update box: %w", err))
	}
	if result.MatchedCount == 0 {
		return domain.ErrBoxNotFound
	}
	return nil
}

// FindByID retrieves a box by its ID
func (r *BoxRepository) FindByID(ctx context.Context, boxID string) (*domain.Box, error) {
	var box domain.Box
	err := r.client.Exec(ctx, BoxCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": boxID}).Decode(&box)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("failed to find box: %w", err))
	}
	return &box, nil
}

var _ domain.BoxRepository = (*BoxRepository)(nil)
