// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. This enables better error categorization, logging,
// and user experience by providing context-aware error information.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	// ConnectionFailed indicates a pool or session connection could not be established.
	ConnectionFailed Kind = "connection_failed"
	// TunnelFailed indicates SSH tunnel construction failed.
	TunnelFailed Kind = "tunnel_failed"
	// StatementFailed indicates a single SQL statement failed during execution.
	StatementFailed Kind = "statement_failed"
	// CancelFailed indicates an out-of-band cancel or terminate request failed.
	CancelFailed Kind = "cancel_failed"
	// SecureStorage indicates the OS keychain was unavailable or rejected an operation.
	SecureStorage Kind = "secure_storage"
	// ProfileInvalid indicates a connection profile is missing or malformed.
	ProfileInvalid Kind = "profile_invalid"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }
