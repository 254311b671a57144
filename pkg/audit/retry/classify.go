// Package retry provides failure classification and bounded retry with
// exponential backoff for collection task execution. Classification is a
// closed enum so retry and remediation logic stay decoupled from any
// transport's error taxonomy.
package retry

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// Class is the failure classification used to decide retry behavior.
type Class int

// Failure classes. Only Transient failures are retried.
const (
	// ClassUnknown covers errors with no recognized category.
	ClassUnknown Class = iota

	// ClassTransient covers network and transport disruptions that are
	// worth retrying.
	ClassTransient

	// ClassAuth covers authentication and authorization failures.
	// Retrying these amplifies lockout risk, so they never retry.
	ClassAuth

	// ClassTimeout covers deadline expiry. Deadline expiry is terminal:
	// a task that ran out of time is never retried.
	ClassTimeout
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAuth:
		return "auth"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Remediation returns a short hint for operators facing this failure class.
func (c Class) Remediation() string {
	switch c {
	case ClassTransient:
		return "check network connectivity to the target and re-run"
	case ClassAuth:
		return "verify the credential reference grants access to the target"
	case ClassTimeout:
		return "increase the task timeout or reduce concurrency for this target"
	default:
		return "inspect the task error detail; the failure was not recognized"
	}
}

// ClassifiedError attaches a Class to an underlying error. Collectors and
// probers wrap their errors with Mark* so the classifier does not need to
// know their transport.
type ClassifiedError struct {
	Class Class
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return e.Class.String() + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err as a transient (retryable) failure.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// MarkAuth wraps err as an authentication/authorization failure.
func MarkAuth(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassAuth, Err: err}
}

// Classify maps an error to its failure class. Explicitly marked errors win;
// otherwise deadline errors map to ClassTimeout and recognizable network
// errors to ClassTransient. Everything else is ClassUnknown and not retried.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransient
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return ClassTransient
	}

	return ClassUnknown
}
