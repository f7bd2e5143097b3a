package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the symbolic error code carried in the error envelope.
type Code string

const (
	CodeParseError         Code = "PARSE_ERROR"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotSupported Code = "METHOD_NOT_SUPPORTED"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus maps the code to an HTTP status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeParseError, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotSupported:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps the code to its JSON-RPC 2.0 style number.
func (c Code) JSONRPCCode() int {
	switch c {
	case CodeParseError:
		return -32700
	case CodeBadRequest:
		return -32600
	case CodeUnauthorized:
		return -32001
	case CodeForbidden:
		return -32003
	case CodeNotFound:
		return -32004
	case CodeMethodNotSupported:
		return -32005
	case CodeTooManyRequests:
		return -32029
	default:
		return -32603
	}
}

// FieldError represents a validation error on a specific input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is an error that is safe to return to callers.
type Error struct {
	Code        Code
	Message     string
	FieldErrors []FieldError
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that keeps err as its cause for logging.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func Unauthorized(message string) *Error {
	return NewError(CodeUnauthorized, message)
}

func NotFound(resource string) *Error {
	return NewError(CodeNotFound, resource+" not found")
}

func BadRequest(message string) *Error {
	return NewError(CodeBadRequest, message)
}

// Validation builds a BAD_REQUEST error from field errors.
func Validation(fieldErrors []FieldError) *Error {
	message := "Invalid input"
	if len(fieldErrors) > 0 {
		message = fmt.Sprintf("%s: %s", fieldErrors[0].Field, fieldErrors[0].Message)
		if len(fieldErrors) > 1 {
			message = fmt.Sprintf("%s (and %d more errors)", message, len(fieldErrors)-1)
		}
	}
	return &Error{Code: CodeBadRequest, Message: message, FieldErrors: fieldErrors}
}

// AsError converts any error into an *Error. Errors that are not already
// *Error become INTERNAL_SERVER_ERROR without leaking their text.
func AsError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return Wrap(CodeInternal, "Internal server error", err)
}
