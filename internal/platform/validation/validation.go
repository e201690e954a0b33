// Package validation wraps go-playground/validator with the clinic's custom
// tags and turns failures into messages fit for a form.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		return weekdays[strings.ToLower(fl.Field().String())]
	})
	v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})
	return v
}

// Errors is a list of human readable validation failures.
type Errors []string

func (e Errors) Error() string { return strings.Join(e, "; ") }

// Struct validates s. The returned error, when non-nil, is an Errors value.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe))
	}
	return out
}

// Messages extracts the list from err, or wraps a plain error as one message.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var v Errors
	if errors.As(err, &v) {
		return v
	}
	return []string{err.Error()}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s does not match", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "phone":
		return fmt.Sprintf("%s must be a valid phone number", field)
	case "weekday":
		return fmt.Sprintf("%s must be a day of the week", field)
	case "clock":
		return fmt.Sprintf("%s must be a time like 09:30", field)
	case "isodate":
		return fmt.Sprintf("%s must be a date like 2024-05-01", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
