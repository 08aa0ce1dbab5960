package mongodb

import (
	"context"

	"github.com/dubox-platform/production-service/internal/domain"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
)

// UnitOfWork runs functions in a MongoDB transaction. Repositories join it
// through the session carried by the context.
type UnitOfWork struct {
	client *pkgmongo.InstrumentedClient
}

// NewUnitOfWork creates a transactional unit of work
func NewUnitOfWork(client *pkgmongo.InstrumentedClient) *UnitOfWork {
	return &UnitOfWork{client: client}
}

// Do implements domain.UnitOfWork
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return translate(u.client.WithTransaction(ctx, fn))
}

var _ domain.UnitOfWork = (*UnitOfWork)(nil)
