package client

import (
	"errors"
	"fmt"
	"net/http"
)

// FieldError is a validation message for one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a procedure failure reported by the server.
type Error struct {
	Procedure   string
	Code        string
	Status      int
	Message     string
	FieldErrors []FieldError
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: status %d: %s", e.Procedure, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Procedure, e.Code, e.Message)
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	if e.Code == "UNAUTHORIZED" {
		return false
	}
	return e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusRequestTimeout ||
		e.Status >= http.StatusInternalServerError
}

// Field returns the message for field, if any.
func (e *Error) Field(name string) (string, bool) {
	for _, fe := range e.FieldErrors {
		if fe.Field == name {
			return fe.Message, true
		}
	}
	return "", false
}

// IsUnauthorized reports whether err means the caller is not signed in.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == "UNAUTHORIZED"
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == "NOT_FOUND"
}
