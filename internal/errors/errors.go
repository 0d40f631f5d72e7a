// Package errors provides error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeInput indicates an input validation error
	TypeInput Type = "INPUT_ERROR"

	// TypeParsing indicates a parsing error
	TypeParsing Type = "PARSING_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"

	// TypeNotFound indicates a resource not found error
	TypeNotFound Type = "NOT_FOUND"

	// TypeUnregisteredKind indicates a request for a kind no stage produces
	TypeUnregisteredKind Type = "UNREGISTERED_KIND"

	// TypeDuplicateKind indicates a second stage registered for the same kind
	TypeDuplicateKind Type = "DUPLICATE_KIND"

	// TypeAlreadyResolved indicates a seed for a kind that is already requested or seeded
	TypeAlreadyResolved Type = "ALREADY_RESOLVED"

	// TypeStage indicates a stage failed to produce its artifact
	TypeStage Type = "STAGE_ERROR"

	// TypeGeometry indicates invalid or degenerate geometry
	TypeGeometry Type = "GEOMETRY_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType reports whether err, or any error it wraps, is a domain error of type t.
// Stage errors wrap the failure of the stage below them, so the whole chain is searched.
func IsType(err error, t Type) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}

// UnregisteredKind creates an error for a kind with no registered stage.
// A missing stage is a wiring mistake, so the cause is a configuration error.
func UnregisteredKind(kind string) *Error {
	return Wrapf(TypeUnregisteredKind, New(TypeConfig, "stage catalog is incomplete"),
		"no stage registered for kind: %s", kind).WithContext("kind", kind)
}

// DuplicateKind creates an error for a second registration of a kind
func DuplicateKind(kind string) *Error {
	return Newf(TypeDuplicateKind, "stage already registered: %s", kind).WithContext("kind", kind)
}

// AlreadyResolved creates an error for seeding a kind that already has a cell
func AlreadyResolved(kind string) *Error {
	return Newf(TypeAlreadyResolved, "kind already requested or seeded: %s", kind).WithContext("kind", kind)
}

// Stage wraps the failure of the stage producing kind
func Stage(kind string, cause error) *Error {
	return Wrapf(TypeStage, cause, "stage %s failed", kind).WithContext("kind", kind)
}

// Geometry creates a geometry error
func Geometry(message string) *Error {
	return New(TypeGeometry, message)
}
