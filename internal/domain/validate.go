package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var unsafeMarkup = regexp.MustCompile(`(?i)<\s*/?\s*(script|iframe|object|embed)\b|javascript\s*:|\bon[a-z]+\s*=`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("safetext", func(fl validator.FieldLevel) bool {
		return !unsafeMarkup.MatchString(fl.Field().String())
	})
	return v
}
