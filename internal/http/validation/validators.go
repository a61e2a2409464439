// Package validation collects per-field error messages for request bodies and query strings.
package validation

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validator returns a user-facing message when v is invalid, or "".
type Validator func(v string) string

// Required rejects blank values and values longer than maxLen runes.
func Required(label string, maxLen int) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return label + " is required."
		}
		return tooLong(label, v, maxLen)
	}
}

// Optional accepts blank values and otherwise enforces maxLen.
func Optional(label string, maxLen int) Validator {
	return func(v string) string {
		return tooLong(label, strings.TrimSpace(v), maxLen)
	}
}

// Length is Required with a lower bound. The value is measured untrimmed so that
// passwords keep their whitespace.
func Length(label string, minLen, maxLen int) Validator {
	return func(v string) string {
		if strings.TrimSpace(v) == "" {
			return label + " is required."
		}
		if n := utf8.RuneCountInString(v); n < minLen || n > maxLen {
			return fmt.Sprintf("%s must be between %d and %d characters.", label, minLen, maxLen)
		}
		return ""
	}
}

// Email accepts a bare address such as user@example.org; display-name forms are rejected.
func Email(label string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return label + " is required."
		}
		if addr, err := mail.ParseAddress(v); err != nil || addr.Address != v {
			return label + " must be a valid email address."
		}
		return ""
	}
}

// OneOf matches options case-insensitively. Blank values pass.
func OneOf(label string, options []string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		for _, opt := range options {
			if strings.EqualFold(v, opt) {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of: %s", label, strings.Join(options, ", "))
	}
}

// Bool accepts anything strconv.ParseBool does. Blank values pass.
func Bool(label string) Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if _, err := strconv.ParseBool(v); err != nil {
			return label + " must be true or false."
		}
		return ""
	}
}

func tooLong(label, v string, maxLen int) string {
	if utf8.RuneCountInString(v) > maxLen {
		return fmt.Sprintf("%s cannot exceed %d characters.", label, maxLen)
	}
	return ""
}

// FieldValidator accumulates the first failure per field.
type FieldValidator struct {
	errors map[string]string
}

// New returns an empty FieldValidator.
func New() *FieldValidator {
	return &FieldValidator{errors: make(map[string]string)}
}

// Validate runs validators in order and records the first message for field.
// Fields that already failed are skipped.
func (fv *FieldValidator) Validate(field, value string, validators ...Validator) *FieldValidator {
	if _, failed := fv.errors[field]; failed {
		return fv
	}
	for _, v := range validators {
		if msg := v(value); msg != "" {
			fv.errors[field] = msg
			break
		}
	}
	return fv
}

// Each validates every element of values under one field name.
func (fv *FieldValidator) Each(field string, values []string, validators ...Validator) *FieldValidator {
	for _, value := range values {
		fv.Validate(field, value, validators...)
	}
	return fv
}

// Errors returns the recorded messages keyed by field.
func (fv *FieldValidator) Errors() map[string]string {
	return fv.errors
}

// Valid reports whether no field failed.
func (fv *FieldValidator) Valid() bool {
	return len(fv.errors) == 0
}
