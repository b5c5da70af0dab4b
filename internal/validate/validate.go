// Package validate runs struct-tag validation and reports the first failure as a
// *fleeterr.ValidationError.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/semanticallynull/ebike-fleet/fleeterr"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &fleeterr.ValidationError{Field: fe.Field(), Reason: message(fe)}
	}
	return &fleeterr.ValidationError{Reason: err.Error()}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "required_without":
		return "is required unless " + fe.Param() + " is set"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}

// Var validates a single value against tag.
func Var(value any, tag string) error {
	if err := v.Var(value, tag); err != nil {
		return &fleeterr.ValidationError{Reason: err.Error()}
	}
	return nil
}
