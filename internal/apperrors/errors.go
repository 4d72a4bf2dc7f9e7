// Package apperrors defines the failure taxonomy shared by the outreach workflow.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// PreconditionError is returned when an operation is rejected before any
// external call is made. No state is mutated.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Precondition builds a PreconditionError.
func Precondition(op, reason string) error {
	return &PreconditionError{Op: op, Reason: reason}
}

// ExternalError wraps a failure of a collaborator (generation, telephony,
// email, memory store). Timeouts are external errors too.
type ExternalError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s: %s timed out: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying cause was a deadline.
func (e *ExternalError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// External wraps err as an ExternalError. A nil err stays nil and an
// existing ExternalError is returned unchanged.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalError{Service: service, Op: op, Err: err}
}

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pre *PreconditionError
	return errors.As(err, &pre)
}

// IsExternal reports whether err is an ExternalError.
func IsExternal(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext)
}

// IsTimeout reports whether err is an ExternalError caused by a deadline.
func IsTimeout(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext) && ext.Timeout()
}
