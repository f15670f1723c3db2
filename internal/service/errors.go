package service

import "fmt"

// Error is a domain error returned by service methods.
// Handlers map these to appropriate HTTP responses.
type Error struct {
	Kind    ErrorKind
	Code    string // machine-readable error code (e.g., "invalid_request", "duplicate_order")
	Message string // human-readable message
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorKind classifies domain errors for HTTP status mapping.
type ErrorKind int

const (
	ErrBadRequest      ErrorKind = iota // 400
	ErrUnauthorized                     // 401
	ErrForbidden                        // 403
	ErrNotFound                         // 404
	ErrConflict                         // 409
	ErrTooManyRequests                  // 429
	ErrInternal                         // 500
	ErrUnavailable                      // 503
	ErrGatewayTimeout                   // 504
)

func NewBadRequest(code, message string) *Error {
	return &Error{Kind: ErrBadRequest, Code: code, Message: message}
}

func NewUnauthorized(code, message string) *Error {
	return &Error{Kind: ErrUnauthorized, Code: code, Message: message}
}

func NewForbidden(code, message string) *Error {
	return &Error{Kind: ErrForbidden, Code: code, Message: message}
}

func NewNotFound(code, message string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: message}
}

func NewConflict(code, message string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: message}
}

func NewInternal(code, message string) *Error {
	return &Error{Kind: ErrInternal, Code: code, Message: message}
}

func NewUnavailable(code, message string) *Error {
	return &Error{Kind: ErrUnavailable, Code: code, Message: message}
}

func NewGatewayTimeout(code, message string) *Error {
	return &Error{Kind: ErrGatewayTimeout, Code: code, Message: message}
}
