// Package apperr provides the typed errors returned by the stoppage lifecycle.
// The transport layer maps them to status codes without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindInternal is a storage or transaction failure. The transaction has
	// been rolled back and the command is safe to retry.
	KindInternal Kind = iota
	// KindNotFound indicates a machine or event is absent or outside the tenant scope.
	KindNotFound
	// KindValidation indicates missing or malformed caller input.
	KindValidation
	// KindConflict indicates the open-event policy blocked the command.
	KindConflict
	// KindAlreadyClosed is returned when closing an event that is already closed.
	KindAlreadyClosed
)

// String returns the tag reported to callers.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindConflict:
		return "CONFLICT"
	case KindAlreadyClosed:
		return "ALREADY_CLOSED"
	default:
		return "INTERNAL"
	}
}

// Conflict codes.
const (
	CodeAlreadyOpen = "ALREADY_OPEN"
	CodeOtherOpen   = "OTHER_OPEN"
)

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Code    string // Conflict code, empty for other kinds
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
	Details any    // Additional details for the response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindAlreadyClosed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WithOp sets the operation and returns e.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails sets the details and returns e.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a policy conflict carrying a code and a prompt for the user.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func AlreadyClosed(message string) *Error {
	return New(KindAlreadyClosed, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetKind extracts the error kind from an error.
// Errors that are not an *Error are internal.
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}
