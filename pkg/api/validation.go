package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/dubox-platform/production-service/pkg/errors"
)

// BindAndValidate binds the JSON request body and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.ErrValidationWithFields("validation failed", fieldErrors(validationErrors))
		}
		return apperrors.ErrBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// BindQueryAndValidate binds query parameters and validates them
func BindQueryAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.ErrValidationWithFields("validation failed", fieldErrors(validationErrors))
		}
		return apperrors.ErrBadRequest(fmt.Sprintf("invalid query parameters: %v", err))
	}
	return nil
}

// BindURIAndValidate binds path parameters and validates them
func BindURIAndValidate(c *gin.Context, obj interface{}) *apperrors.AppError {
	if err := c.ShouldBindUri(obj); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return apperrors.ErrValidationWithFields("invalid path parameters", fieldErrors(validationErrors))
		}
		return apperrors.ErrBadRequest(fmt.Sprintf("invalid path parameters: %v", err))
	}
	return nil
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fieldPath(fe)] = errorMessage(fe)
	}
	return fields
}

// fieldPath drops the root struct name: "RaiseRequest.responses[2].result"
// becomes "responses[2].result".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func errorMessage(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "activity_code":
		return fmt.Sprintf("%s must look like STAGE<n>-<CODE>", field)
	case "box_id":
		return fmt.Sprintf("%s must be 1-64 letters, digits, '-' or '_'", field)
	case "item_result":
		return fmt.Sprintf("%s must be one of: pass, fail, n/a", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
