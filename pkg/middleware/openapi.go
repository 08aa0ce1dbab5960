package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dubox-platform/production-service/pkg/contracts/openapi"
	"github.com/dubox-platform/production-service/pkg/errors"
)

// OpenAPIValidation rejects requests that do not match the API contract.
// Routes outside the contract (health, metrics) pass through.
func OpenAPIValidation(v *openapi.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := v.OperationID(c.Request); err != nil {
			c.Next()
			return
		}

		if err := v.ValidateRequest(c.Request); err != nil {
			AbortWithAppError(c, errors.ErrValidation(err.Error()))
			return
		}
		c.Next()
	}
}
