package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dubox-platform/production-service/internal/domain"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
)

// ProgressCollection holds one progress record per box
const ProgressCollection = "progress_records"

// ProgressRepository implements domain.ProgressRepository for MongoDB with
// optimistic versioning
type ProgressRepository struct {
	client     *pkgmongo.InstrumentedClient
	collection *mongo.Collection
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(client *pkgmongo.InstrumentedClient) *ProgressRepository {
	return &ProgressRepository{
		client:     client,
		collection: client.Collection(ProgressCollection),
	}
}

// Save inserts a new record (version 0) or replaces the stored one when the
// versions match
func (r *ProgressRepository) Save(ctx context.Context, record *domain.ProgressRecord) error {
	doc := *record
	doc.Version = record.Version + 1

	conflict, err := saveVersioned(ctx, r.client, r.collection, ProgressCollection, record.BoxID, record.Version, &doc)
	if err != nil {
		return translate(fmt.Errorf("failed to save progress record: %w", err))
	}
	if conflict {
		return domain.ErrConcurrentUpdate
	}
	record.Version = doc.Version
	return nil
}

// FindByBoxID retrieves the record of a box
func (r *ProgressRepository) FindByBoxID(ctx context.Context, boxID string) (*domain.ProgressRecord, error) {
	var record domain.ProgressRecord
	err := r.client.Exec(ctx, ProgressCollection, "findOne", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": boxID}).Decode(&record)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(fmt.Errorf("failed to find progress record: %w", err))
	}
	return &record, nil
}

// saveVersioned writes doc under id. A first save inserts; later saves
// replace only the document still at expected. conflict is true when the
// stored version moved on.
func saveVersioned(ctx context.Context, client *pkgmongo.InstrumentedClient, coll *mongo.Collection, collection, id string, expected int64, doc interface{}) (conflict bool, err error) {
	if expected == 0 {
		err = client.Exec(ctx, collection, "insertOne", func(ctx context.Context) error {
			_, err := coll.InsertOne(ctx, doc)
			return err
		})
		if mongo.IsDuplicateKeyError(err) {
			return true, nil
		}
		return false, err
	}

	var result *mongo.UpdateResult
	err = client.Exec(ctx, collection, "replaceOne", func(ctx context.Context) error {
		var err error
		result, err = coll.ReplaceOne(ctx, bson.M{"_id": id, "version": expected}, doc)
		return err
	})
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 0, nil
}

var _ domain.ProgressRepository = (*ProgressRepository)(nil)
