package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jwalitptl/care-scheduling/pkg/errors"
	"github.com/jwalitptl/care-scheduling/pkg/timeslot"
)

// FieldError is one failed rule, keyed by the JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required": "is required",
	"uuid":     "must be a valid UUID",
	"oneof":    "has an unsupported value",
	"max":      "is too long",
	"timeslot": "must be in HH:mm-HH:mm format with start before end",
	"date":     "must be a date in YYYY-MM-DD format",
}

// New returns a validator with the scheduling tags registered.
func New() (*validator.Validate, error) {
	v := validator.New()
	if err := Register(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Register adds the "timeslot" and "date" tags and reports fields by their JSON name.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	if err := v.RegisterValidation("timeslot", validateTimeSlot); err != nil {
		return fmt.Errorf("register timeslot: %w", err)
	}
	if err := v.RegisterValidation("date", validateDate); err != nil {
		return fmt.Errorf("register date: %w", err)
	}
	return nil
}

// RegisterGin installs the tags on gin's binding engine.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	return Register(v)
}

func validateTimeSlot(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := timeslot.Parse(fl.Field().String())
	return err == nil
}

func validateDate(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := timeslot.ParseDate(fl.Field().String())
	return err == nil
}

// FieldErrors flattens validator errors; nil when err is not a validation failure.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := messages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		}
		out = append(out, FieldError{Field: e.Field(), Message: msg})
	}
	return out
}

// Translate turns a binding error into a Validation AppError.
func Translate(err error) *errors.AppError {
	fields := FieldErrors(err)
	if len(fields) == 0 {
		return errors.Validation("invalid request body", err)
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return errors.Validation(strings.Join(parts, "; "), err)
}
