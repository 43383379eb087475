// Package validator provides validation infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the two-digit-year calendar format operators type (DD.MM.YY).
const DateLayout = "02.01.06"

// Validator wraps the go-playground validator for structured validation.
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator instance with the taxid and ddmmyy rules registered.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("taxid", validateTaxID)
	_ = v.RegisterValidation("ddmmyy", validateDate)
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// taxid: exactly 10 or 12 ASCII digits.
func validateTaxID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 10 && len(s) != 12 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ddmmyy: a real calendar date. time.Parse rejects 31.02.25.
func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}
