// Package validation wraps go-playground/validator with readable error messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around go-playground/validator.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator that reports field names using the given struct tag
// (e.g. "yaml" or "koanf"); an empty tag keeps Go field names.
func New(tag string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if tag != "" {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	}
	return &Validator{validate: v}
}

// Struct validates a struct using its validation tags.
func (v *Validator) Struct(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return format(err)
	}
	return nil
}

func format(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')",
			e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
}
