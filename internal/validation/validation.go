// Package validation wraps go-playground/validator with the tags used by
// node, mechanism and mapping records, and turns validator failures into
// core.Violation values so a whole batch can be reported at once.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/leapstack-labs/nodecheck/pkg/core"
)

// validate is a singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their record key rather than the Go field name.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister("node_id", func(fl validator.FieldLevel) bool {
		return core.ValidID(fl.Field().String())
	})
	mustRegister("scale", func(fl validator.FieldLevel) bool {
		_, ok := core.ParseScale(fl.Field().String())
		return ok
	})
	mustRegister("value_type", func(fl validator.FieldLevel) bool {
		_, ok := core.ParseValueType(fl.Field().String())
		return ok
	})
	mustRegister("status", func(fl validator.FieldLevel) bool {
		_, ok := core.ParseStatus(fl.Field().String())
		return ok
	})
	mustRegister("operation", func(fl validator.FieldLevel) bool {
		_, ok := core.ParseOperation(fl.Field().String())
		return ok
	})
	mustRegister("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates a record and returns one violation per failing field.
// index and id locate the record in its batch.
func Struct(record any, index int, id string) []core.Violation {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []core.Violation{{Index: index, ID: id, Field: "-", Message: err.Error()}}
	}

	violations := make([]core.Violation, 0, len(validationErrs))
	for _, e := range validationErrs {
		violations = append(violations, core.Violation{
			Index:   index,
			ID:      id,
			Field:   fieldPath(e),
			Message: message(e),
		})
	}
	return violations
}

// fieldPath strips the struct name from the namespace: "RawNode.domain[0]" -> "domain[0]".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// message converts a validator error into a user-friendly sentence.
func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "nonblank":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "node_id":
		return fmt.Sprintf("%q is not a valid id (lowercase letters, digits and underscores only)", e.Value())
	case "scale":
		return fmt.Sprintf("unknown scale %q", e.Value())
	case "value_type":
		return fmt.Sprintf("unknown value type %q", e.Value())
	case "status":
		return fmt.Sprintf("unknown status %q", e.Value())
	case "operation":
		return fmt.Sprintf("unknown operation %q", e.Value())
	default:
		return fmt.Sprintf("failed %q validation", e.Tag())
	}
}
