// Package errs implements the error taxonomy of spec.md section 7 as
// Kinds of a single Error type: Validation, Conflict, Protocol violation
// and Cancellation, plus ExternalRPC and Repository for collaborator
// failures. No-Match is deliberately not modeled as an error here since
// spec.md is explicit that it is a data outcome, not an error (see
// pkg/matcher).
package errs

import "fmt"

// Kind classifies an orchestrator-level error for callers (e.g. an HTTP
// layer, out of scope here) that need to map it to a status code.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindProtocol     Kind = "protocol"
	KindCancellation Kind = "cancellation"
	KindExternalRPC  Kind = "external_rpc"
	KindRepository   Kind = "repository"
)

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a spec that fails structural or semantic checks.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Conflict reports a concurrent mutation against an in-flight deployment.
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Protocol reports an update operation illegal for the target entity's
// current state (e.g. a MesosUpdate against a Reserved task).
func Protocol(format string, args ...any) *Error { return newf(KindProtocol, format, args...) }

// Cancellation reports a controller/plan cancellation.
func Cancellation(format string, args ...any) *Error { return newf(KindCancellation, format, args...) }

// ExternalRPC wraps a failure from the External Resource Manager or Kill
// Service collaborators.
func ExternalRPC(cause error, format string, args ...any) *Error {
	e := newf(KindExternalRPC, format, args...)
	e.Cause = cause
	return e
}

// Repository wraps a failure from the Repository collaborator.
func Repository(cause error, format string, args ...any) *Error {
	e := newf(KindRepository, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}
