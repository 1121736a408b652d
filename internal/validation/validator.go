// Package validation provides struct and field validation for the
// values that cross a CRDT's public entry points (envelopes, ids,
// operation payloads).
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// Validator wraps the validator instance used across the crdt package.
type Validator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator instance with the module's
// custom tags registered.
func NewValidator() *Validator {
	v := validator.New()

	v.RegisterValidation("replicaid", validateReplicaID)
	v.RegisterValidation("crdtkind", validateCrdtKind)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validator: v}
}

// ValidateStruct validates s and, on failure, returns a
// *crdterrors.Error with Code InvalidArgument describing every failing
// field.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var messages []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			messages = append(messages, fmt.Sprintf("%s: %s", fe.Field(), messageFor(fe)))
		}
	} else {
		messages = append(messages, err.Error())
	}

	return crdterrors.NewInvalidArgument("validation failed").
		WithDetails(strings.Join(messages, ", "))
}

// ValidateVar validates a single value against a validator tag
// expression, e.g. ValidateVar(id, "required,replicaid").
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	if err := v.validator.Var(field, tag); err != nil {
		return crdterrors.NewInvalidArgument("validation failed").WithDetails(err.Error())
	}
	return nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "replicaid":
		return "must not contain whitespace"
	case "crdtkind":
		return "must be a recognized CrdtKind"
	default:
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}

// validateReplicaID rejects replica/crdt ids that contain whitespace;
// ids are meant to travel as map keys and wire-format tokens.
func validateReplicaID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // use "required" for mandatory-ness
	}
	return !strings.ContainsAny(value, " \t\n\r")
}

// validateCrdtKind backs the "crdtkind" tag: it accepts only the six
// recognized CrdtKind wire tags. envelope.go's Kind field and
// Registry.GetOrCreate both use it.
func validateCrdtKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch value {
	case "g_counter", "pn_counter", "g_set", "or_set", "lww_register", "rga":
		return true
	default:
		return false
	}
}
