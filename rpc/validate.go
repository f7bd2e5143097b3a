package rpc

import (
	"fmt"
	"net/mail"
	"unicode/utf8"
)

// Validator accumulates field errors for one input.
type Validator struct {
	errs []FieldError
}

// Check records message for field when ok is false.
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: field, Message: message})
	}
}

// Length checks that value has between min and max characters.
func (v *Validator) Length(value, field string, min, max int) {
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			v.Check(false, field, "Required")
			return
		}
		v.Check(false, field, fmt.Sprintf("Must contain at least %d characters", min))
		return
	}
	v.Check(n <= max, field, fmt.Sprintf("Must contain at most %d characters", max))
}

// Email checks that value is a bare email address.
func (v *Validator) Email(value, field string) {
	addr, err := mail.ParseAddress(value)
	v.Check(err == nil && addr.Address == value, field, "Invalid email")
}

// Err returns a validation Error, or nil when every check passed.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return Validation(v.errs)
}
