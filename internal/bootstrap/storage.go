// Package bootstrap wires the storage and reference data shared by the
// API server and the SLA worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dubox-platform/production-service/internal/authorization"
	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/internal/domain"
	"github.com/dubox-platform/production-service/internal/infrastructure/memory"
	mongoRepo "github.com/dubox-platform/production-service/internal/infrastructure/mongodb"
	"github.com/dubox-platform/production-service/pkg/idempotency"
	idempotencyMongo "github.com/dubox-platform/production-service/pkg/idempotency/mongodb"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/mongodb"
	"github.com/dubox-platform/production-service/pkg/outbox"
	outboxMongo "github.com/dubox-platform/production-service/pkg/outbox/mongodb"
	"github.com/dubox-platform/production-service/pkg/resilience"
)

// Storage backends
const (
	StorageMemory  = "memory"
	StorageMongoDB = "mongodb"
)

// Storage bundles the repositories one process runs against
type Storage struct {
	Boxes      domain.BoxRepository
	Progress   domain.ProgressRepository
	WIRs       domain.WIRRepository
	Outbox     outbox.Repository
	UnitOfWork domain.UnitOfWork
	Keys       idempotency.Repository

	ready func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ready reports whether the backing store is reachable
func (s *Storage) Ready(ctx context.Context) error {
	if s.ready == nil {
		return nil
	}
	return s.ready(ctx)
}

// Close releases the backing store
func (s *Storage) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// NewMemoryStorage returns process-local storage
func NewMemoryStorage() *Storage {
	store := memory.NewStore()
	return &Storage{
		Boxes:      store.Boxes(),
		Progress:   store.Progress(),
		WIRs:       store.WIRs(),
		Outbox:     store.Outbox(),
		UnitOfWork: store.UnitOfWork(),
		Keys:       idempotency.NewMemoryRepository(),
	}
}

// OpenStorage opens the backend named by kind. MongoDB connections are
// retried with backoff and indexes are created on a best-effort basis.
func OpenStorage(ctx context.Context, kind string, config *mongodb.Config, m *metrics.Metrics, logger *logging.Logger) (*Storage, error) {
	switch kind {
	case StorageMemory:
		return NewMemoryStorage(), nil
	case StorageMongoDB, "":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}

	var client *mongodb.Client
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		var connErr error
		client, connErr = mongodb.NewClient(ctx, config)
		return connErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	instrumented := mongodb.NewInstrumentedClient(client, m, logger)
	logger.Info("Connected to MongoDB", "database", config.Database)

	boxes := mongoRepo.NewBoxRepository(instrumented)
	wirs := mongoRepo.NewWIRRepository(instrumented)
	outboxRepo := outboxMongo.NewOutboxRepository(instrumented)
	keys := idempotencyMongo.NewKeyRepository(instrumented)

	indexes := []struct {
		collection string
		ensure     func(context.Context) error
	}{
		{mongoRepo.BoxCollection, boxes.EnsureIndexes},
		{mongoRepo.WIRCollection, wirs.EnsureIndexes},
		{outboxMongo.CollectionName, outboxRepo.EnsureIndexes},
		{idempotencyMongo.CollectionName, keys.EnsureIndexes},
	}
	for _, idx := range indexes {
		if err := idx.ensure(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create indexes", "collection", idx.collection)
		}
	}

	return &Storage{
		Boxes:      boxes,
		Progress:   mongoRepo.NewProgressRepository(instrumented),
		WIRs:       wirs,
		Outbox:     outboxRepo,
		UnitOfWork: mongoRepo.NewUnitOfWork(instrumented),
		Keys:       keys,
		ready:      instrumented.HealthCheck,
		close:      instrumented.Close,
	}, nil
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty
func LoadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadDefault()
	}
	return catalog.LoadFile(path)
}

// LoadMatrix reads the permission matrix at path, or the embedded default when path is empty
func LoadMatrix(path string) (*authorization.Matrix, error) {
	if path == "" {
		return authorization.LoadDefault()
	}
	return authorization.LoadFile(path)
}
