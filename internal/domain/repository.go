package domain

import (
	"context"
)

// BoxRepository defines the interface for box persistence.
// Find methods return nil, nil when nothing matches.
type BoxRepository interface {
	// Create inserts a new box
	Create(ctx context.Context, box *Box) error

	// Update replaces an existing box
	Update(ctx context.Context, box *Box) error

	// FindByID retrieves a box by its ID
	FindByID(ctx context.Context, boxID string) (*Box, error)
}

// ProgressRepository defines the interface for progress record persistence.
// Save fails with ErrConcurrentUpdate when the stored version differs from
// record.Version; on success the stored version is record.Version+1.
type ProgressRepository interface {
	Save(ctx context.Context, record *ProgressRecord) error
	FindByBoxID(ctx context.Context, boxID string) (*ProgressRecord, error)
}

// WIRRepository defines the interface for inspection history persistence.
// Save follows the same versioning rule as ProgressRepository.
type WIRRepository interface {
	Save(ctx context.Context, history *WIRHistory) error
	FindByBoxAndActivity(ctx context.Context, boxID, activityCode string) (*WIRHistory, error)
	FindByBoxID(ctx context.Context, boxID string) ([]*WIRHistory, error)

	// FindPending returns histories whose latest attempt is open or submitted
	FindPending(ctx context.Context) ([]*WIRHistory, error)
}

// UnitOfWork runs fn so that every repository call made with the context it
// receives commits or rolls back together
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
