package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	// sockaddr accepts the schemes both transports can listen on and dial
	validate.RegisterValidation("sockaddr", func(fl validator.FieldLevel) bool {
		scheme, rest, ok := strings.Cut(fl.Field().String(), "://")
		if !ok || rest == "" {
			return false
		}
		switch scheme {
		case "tcp", "ipc", "inproc":
			return true
		}
		return false
	})
}

// Struct validates a struct using its `validate` tags and reports every failing field.
func Struct(v any) error {
	if v == nil {
		return errors.New("value to validate cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Errorf("%s: field is required", field))
		case "min", "gte":
			msgs = append(msgs, fmt.Errorf("%s: must be at least %s", field, param))
		case "max", "lte":
			msgs = append(msgs, fmt.Errorf("%s: must not exceed %s", field, param))
		case "oneof":
			msgs = append(msgs, fmt.Errorf("%s: must be one of [%s]", field, param))
		case "sockaddr":
			msgs = append(msgs, fmt.Errorf("%s: %q is not a tcp://, ipc:// or inproc:// address", field, e.Value()))
		case "required_unless", "required_if":
			msgs = append(msgs, fmt.Errorf("%s: field is required when %s", field, param))
		default:
			msgs = append(msgs, fmt.Errorf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return errors.Join(msgs...)
}
