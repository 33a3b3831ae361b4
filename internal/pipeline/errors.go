// Package pipeline defines the shared error taxonomy and retry policy used
// by every action, queue worker, and scheduler in the ingestion pipeline.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why an action or worker step failed. Kinds are semantic,
// not Go types, so call sites compare against the Kind constants rather than
// type-switching on concrete error structs.
type Kind int

const (
	// KindUnknown is the zero value; never constructed deliberately.
	KindUnknown Kind = iota
	// KindInvalidInput marks a validateInput failure: missing fields, a
	// rejected schema. Never retryable.
	KindInvalidInput
	// KindMissingDependency marks an absent queue, repository, or service
	// the action required. Never retryable.
	KindMissingDependency
	// KindRepositoryFailure marks a failed repository call. Retryable.
	KindRepositoryFailure
	// KindTransientIO marks a failed I/O call expected to succeed on retry
	// (network blip, lock contention). Retryable.
	KindTransientIO
	// KindTimeout marks a deadline breach. Retryable unless the action is
	// already terminal (e.g. categorization wait).
	KindTimeout
	// KindCancelled marks cooperative cancellation between actions.
	// Terminal, never retried, no FAILED event.
	KindCancelled
	// KindExhausted marks a retryable error whose attempts ran out.
	// Terminal, surfaces as FAILED.
	KindExhausted
	// KindProgrammingError marks an invariant violation (e.g.
	// setExpectedCounts called twice with different values). Never
	// retryable; indicates a bug, not a transient condition.
	KindProgrammingError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindMissingDependency:
		return "MissingDependency"
	case KindRepositoryFailure:
		return "RepositoryFailure"
	case KindTransientIO:
		return "TransientIO"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindExhausted:
		return "Exhausted"
	case KindProgrammingError:
		return "ProgrammingError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether an error of this kind should be retried by the
// queue worker runtime.
func (k Kind) Retryable() bool {
	switch k {
	case KindRepositoryFailure, KindTransientIO, KindTimeout:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind and the operation that failed.
// Construct it with the kind-specific constructors below rather than
// building it directly.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind carried by err, walking the error chain. Returns
// KindUnknown if err (or nothing in its chain) is a *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Retryable reports whether err should be retried by the worker runtime.
// Errors with no Kind (plain errors escaping an action) are treated as
// TransientIO — conservative, since an unclassified error is more likely an
// oversight than an intentional terminal condition.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind.Retryable()
	}
	return true
}

func InvalidInput(op string, err error) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: err}
}

func MissingDependency(op string, err error) error {
	return &Error{Kind: KindMissingDependency, Op: op, Err: err}
}

func RepositoryFailure(op string, err error) error {
	return &Error{Kind: KindRepositoryFailure, Op: op, Err: err}
}

func TransientIO(op string, err error) error {
	return &Error{Kind: KindTransientIO, Op: op, Err: err}
}

func Timeout(op string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Err: err}
}

func Cancelled(op string, err error) error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

func Exhausted(op string, err error) error {
	return &Error{Kind: KindExhausted, Op: op, Err: err}
}

func ProgrammingError(op string, err error) error {
	return &Error{Kind: KindProgrammingError, Op: op, Err: err}
}
