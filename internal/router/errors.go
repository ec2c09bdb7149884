package router

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an invocation failure. The kind decides both
// retry behavior inside the router and how the caller should react.
type ErrorKind string

const (
	// KindValidation marks caller-input faults (schema violations,
	// 4xx-class responses). Never retried.
	KindValidation ErrorKind = "ValidationError"

	// KindNotFound marks an unknown capability id or, at resolution
	// time, the absence of any ready backend. Retryable.
	KindNotFound ErrorKind = "NotFound"

	// KindUnavailable marks network failures, timeouts, and an
	// exhausted retry budget.
	KindUnavailable ErrorKind = "Unavailable"

	// KindCapability marks a domain-level failure reported by the
	// backend itself. Never retried: the capability executed and side
	// effects may already exist.
	KindCapability ErrorKind = "CapabilityError"
)

// InvokeError is the structured error returned by the router.
type InvokeError struct {
	Kind       ErrorKind
	Capability string
	Message    string
	Attempts   int   // attempts actually made before the error was returned
	Cause      error // last underlying cause, if any

	// Fault carries the backend's own error envelope, set only for
	// KindCapability. It passes through to the caller unchanged.
	Fault *CapabilityFault
}

// Error implements the error interface
func (e *InvokeError) Error() string {
	msg := fmt.Sprintf("%s: capability %s: %s", e.Kind, e.Capability, e.Message)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *InvokeError) Unwrap() error {
	return e.Cause
}

// KindOf extracts the ErrorKind from an error chain, or "" when the
// error did not originate in the router.
func KindOf(err error) ErrorKind {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}
