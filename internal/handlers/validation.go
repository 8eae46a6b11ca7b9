package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dinarexchange/dinar-auth/internal/models"
	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

// newValidator reports fields by their JSON names so messages match the
// request body the client sent
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateRequest validates a request struct using go-playground/validator.
// The returned error wraps models.ErrValidation and names the first bad field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Errorf("%w: %s: %s", models.ErrValidation, ve[0].Field(), formatValidationError(ve[0]))
	}
	return fmt.Errorf("%w: %v", models.ErrValidation, err)
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "hexadecimal":
		return "must be hexadecimal"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
