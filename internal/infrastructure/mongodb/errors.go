package mongodb

import (
	"fmt"

	"github.com/dubox-platform/production-service/internal/domain"
	pkgmongo "github.com/dubox-platform/production-service/pkg/mongodb"
)

// translate turns transport failures into domain.ErrUnavailable and leaves
// every other error untouched
func translate(err error) error {
	if err == nil {
		return nil
	}
	if pkgmongo.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
