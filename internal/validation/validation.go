// Package validation turns go-playground/validator failures into
// domain.ValidationError keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Validator checks tagged structs.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports fields by their json tag.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	registerDomainRules(v)
	return &Validator{v: v}
}

// registerDomainRules adds tags whose bounds come from the domain package:
// genre, release_year and rating_value.
func registerDomainRules(v *validator.Validate) {
	must := func(err error) {
		if err != nil {
			panic(fmt.Sprintf("validation: register rule: %v", err))
		}
	}
	must(v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return slices.Contains(domain.Genres, fl.Field().String())
	}))
	must(v.RegisterValidation("release_year", func(fl validator.FieldLevel) bool {
		year := fl.Field().Int()
		return year >= domain.MinReleaseYear && year <= domain.MaxReleaseYear
	}))
	must(v.RegisterValidation("rating_value", func(fl validator.FieldLevel) bool {
		value := fl.Field().Int()
		return value >= domain.MinRatingValue && value <= domain.MaxRatingValue
	}))
}

// Struct validates s. Tag failures come back as *domain.ValidationError; any
// other error (e.g. a non-struct argument) is returned as is.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		name := fe.Field()
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = fieldError(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "genre":
		return "must be one of: " + strings.Join(domain.Genres, ", ")
	case "release_year":
		return fmt.Sprintf("must be between %d and %d", domain.MinReleaseYear, domain.MaxReleaseYear)
	case "rating_value":
		return fmt.Sprintf("must be between %d and %d", domain.MinRatingValue, domain.MaxRatingValue)
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}
