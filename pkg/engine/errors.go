// Package engine implements the package-state reconciliation core: it
// classifies requested packages by provenance, plans the minimal ordered set
// of backend invocations needed to reach the desired state, and executes the
// plan through pluggable backend adapters.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass separates errors that were raised before any system mutation
// from those raised while executing a plan.
type ErrorClass string

const (
	// ErrorClassRequest indicates the request itself was rejected.
	// Nothing has been spawned or mutated.
	ErrorClassRequest ErrorClass = "request"

	// ErrorClassExecution indicates a backend invocation failed.
	// Earlier actions in the plan may already have changed the system.
	ErrorClassExecution ErrorClass = "execution"
)

// Error codes for programmatic handling of reconciliation failures.
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeClassification   = "CLASSIFICATION_ERROR"
	ErrCodeBackendNotFound  = "BACKEND_NOT_FOUND"
	ErrCodePackageNotFound  = "PACKAGE_NOT_FOUND"
	ErrCodeBuildFailed      = "BUILD_FAILED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodePartialFailure   = "PARTIAL_FAILURE"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ReconcileError is the classified error type used throughout the engine.
type ReconcileError struct {
	// Class reports whether the system may already have been mutated.
	Class ErrorClass `json:"class"`

	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Package is the package name that caused the error, if applicable.
	Package string `json:"package,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Stderr carries the backend's own diagnostic output, verbatim.
	Stderr string `json:"stderr,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Package != "" {
		msg += fmt.Sprintf(" (package=%s)", e.Package)
	}
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Is matches on code, so callers can compare against sentinel values built
// with the same constructor.
func (e *ReconcileError) Is(target error) bool {
	t, ok := target.(*ReconcileError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithPackage adds package context to an error.
func (e *ReconcileError) WithPackage(name string) *ReconcileError {
	e.Package = name
	return e
}

// WithOperation adds operation context to an error.
func (e *ReconcileError) WithOperation(op string) *ReconcileError {
	e.Operation = op
	return e
}

// WithStderr attaches the backend's captured stderr.
func (e *ReconcileError) WithStderr(stderr string) *ReconcileError {
	e.Stderr = stderr
	return e
}

// NewInvalidInputError reports a rejected request. Always raised before any
// process spawns.
func NewInvalidInputError(message string) *ReconcileError {
	return &ReconcileError{Class: ErrorClassRequest, Code: ErrCodeInvalidInput, Message: message}
}

// NewClassificationError reports a failed provenance or installed-state query.
func NewClassificationError(message string, err error) *ReconcileError {
	return &ReconcileError{Class: ErrorClassRequest, Code: ErrCodeClassification, Message: message, Err: err}
}

// NewBackendNotFoundError reports a selected backend whose executable is
// missing at execution time.
func NewBackendNotFoundError(backend string, err error) *ReconcileError {
	return &ReconcileError{
		Class:   ErrorClassExecution,
		Code:    ErrCodeBackendNotFound,
		Message: fmt.Sprintf("backend executable %s not found", backend),
		Err:     err,
	}
}

// NewPackageNotFoundError reports a name absent from the targeted repository.
func NewPackageNotFoundError(name string) *ReconcileError {
	return &ReconcileError{
		Class:   ErrorClassExecution,
		Code:    ErrCodePackageNotFound,
		Message: "package not found in the targeted repository",
		Package: name,
	}
}

// NewBuildFailedError reports a failed source-build step.
func NewBuildFailedError(name, message string, err error) *ReconcileError {
	return &ReconcileError{
		Class:   ErrorClassExecution,
		Code:    ErrCodeBuildFailed,
		Message: message,
		Package: name,
		Err:     err,
	}
}

// NewPermissionDeniedError reports a privilege mismatch. Raised before the
// offending process spawns.
func NewPermissionDeniedError(message string) *ReconcileError {
	return &ReconcileError{Class: ErrorClassRequest, Code: ErrCodePermissionDenied, Message: message}
}

// NewPolicyDeniedError reports a plan rejected by the policy gate.
func NewPolicyDeniedError(message string) *ReconcileError {
	return &ReconcileError{Class: ErrorClassRequest, Code: ErrCodePolicyDenied, Message: message}
}

// NewExecutionError reports a failed backend invocation.
func NewExecutionError(code, message string, err error) *ReconcileError {
	return &ReconcileError{Class: ErrorClassExecution, Code: code, Message: message, Err: err}
}

// IsInvalidInput reports whether err is an input validation failure.
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrCodeInvalidInput)
}

// IsPermissionDenied reports whether err is a privilege mismatch.
func IsPermissionDenied(err error) bool {
	return hasCode(err, ErrCodePermissionDenied)
}

// IsPackageNotFound reports whether err is a missing-package failure.
func IsPackageNotFound(err error) bool {
	return hasCode(err, ErrCodePackageNotFound)
}

// IsRequestError reports whether err was raised before any system mutation.
func IsRequestError(err error) bool {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Class == ErrorClassRequest
	}
	return false
}

func hasCode(err error, code string) bool {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
