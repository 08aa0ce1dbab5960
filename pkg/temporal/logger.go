package temporal

import (
	"go.temporal.io/sdk/log"

	"github.com/dubox-platform/production-service/pkg/logging"
)

// NewLoggerAdapter routes SDK logs through the service logger
func NewLoggerAdapter(logger *logging.Logger) log.Logger {
	return log.NewStructuredLogger(logger.WithComponent("temporal").Logger)
}
