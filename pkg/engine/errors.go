// Package engine drives the convergence of a remote target toward a desired
// capability set: probe, install in phase order, configure, verify.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for retry and propagation decisions.
type ErrorClass string

const (
	// ErrorClassConnection indicates a channel-level failure (reset,
	// timeout, refused). Retried by the transport; surfaced only once the
	// retry budget is exhausted.
	ErrorClassConnection ErrorClass = "connection"

	// ErrorClassApplication indicates a dispatched command ran and returned
	// failure. Never auto-retried; always reported per capability or unit.
	ErrorClassApplication ErrorClass = "application"

	// ErrorClassMapping indicates an abstract capability has no resolution
	// for the classified OS family. Fatal before any command is issued.
	ErrorClassMapping ErrorClass = "mapping"

	// ErrorClassVerification indicates the post-deployment check never
	// matched within the attempt budget. Reported as degraded success.
	ErrorClassVerification ErrorClass = "verification"

	// ErrorClassInternal indicates an orchestrator-side defect or invalid
	// input.
	ErrorClassInternal ErrorClass = "internal"
)

// Error is a classified engine error with capability and command context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Capability is the capability being acted on, if applicable.
	Capability string `json:"capability,omitempty"`

	// Stderr is the last captured standard error, if a command ran.
	Stderr string `json:"stderr,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("[%s] %s (capability=%s)%s", e.Class, e.Message, e.Capability, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// WithCapability adds capability context to an error.
func (e *Error) WithCapability(capability string) *Error {
	e.Capability = capability
	return e
}

// WithStderr attaches the last captured standard error.
func (e *Error) WithStderr(stderr string) *Error {
	e.Stderr = stderr
	return e
}

// NewConnectionError creates a connection-class error.
func NewConnectionError(message string, err error) *Error {
	return &Error{Class: ErrorClassConnection, Message: message, Err: err}
}

// NewApplicationError creates an application-class error.
func NewApplicationError(message string, err error) *Error {
	return &Error{Class: ErrorClassApplication, Message: message, Err: err}
}

// NewMappingError creates a mapping-class error.
func NewMappingError(message string, err error) *Error {
	return &Error{Class: ErrorClassMapping, Message: message, Err: err}
}

// NewVerificationError creates a verification-class error.
func NewVerificationError(message string, err error) *Error {
	return &Error{Class: ErrorClassVerification, Message: message, Err: err}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, err error) *Error {
	return &Error{Class: ErrorClassInternal, Message: message, Err: err}
}

func classOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsConnection returns true for connection-class errors.
func IsConnection(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorClassConnection
}

// IsApplication returns true for application-class errors.
func IsApplication(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorClassApplication
}

// IsMapping returns true for mapping-class errors.
func IsMapping(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorClassMapping
}

// IsVerification returns true for verification-class errors.
func IsVerification(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorClassVerification
}
