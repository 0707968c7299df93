// Package errs defines the error taxonomy shared by the coupon and order
// domains. Every failure path in a service returns one of these types so the
// transport layer can pick a status code with errors.As instead of matching
// strings.
package errs

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation returns a ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced entity does not exist or is not
// visible to the caller.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// NotFound returns a NotFoundError wrapping cause, which may be nil.
func NotFound(entity, id string, cause error) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id, Err: cause}
}

// ConflictError reports a request that contradicts current state: a duplicate
// unique key or a transition from the wrong state.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return e.Err }

// Conflict returns a ConflictError wrapping cause, which may be nil.
func Conflict(cause error, format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// IneligibleError reports the exact eligibility rule a coupon failed.
type IneligibleError struct {
	Code   string
	Reason string
	Err    error
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason)
}

func (e *IneligibleError) Unwrap() error { return e.Err }

// Ineligible returns an IneligibleError for coupon code.
func Ineligible(code, reason string, cause error) *IneligibleError {
	return &IneligibleError{Code: code, Reason: reason, Err: cause}
}

// PersistenceError reports a failed store operation. It is fatal for the
// current request.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError for op. It returns nil when err
// is nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classified reports whether err already carries one of the taxonomy types.
func Classified(err error) bool {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
		ie *IneligibleError
		pe *PersistenceError
	)
	return errors.As(err, &ve) ||
		errors.As(err, &nf) ||
		errors.As(err, &ce) ||
		errors.As(err, &ie) ||
		errors.As(err, &pe)
}
