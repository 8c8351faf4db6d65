// Package aggregate implements the person aggregate's pure decision and
// application functions: decide maps a pre-state and a command to the
// events it produces (or a typed rejection), and apply folds one event
// into a new pre-state. Both are synchronous and allocate no I/O.
package aggregate

import (
	"errors"
	"fmt"
)

// Kind is the closed set of domain error classifications a caller (the
// dispatcher, ultimately) uses to decide whether to retry, dead-letter,
// or reply with a permanent rejection.
type Kind string

// The error kinds.
const (
	KindValidationError              Kind = "validation_error"
	KindNotFound                     Kind = "not_found"
	KindConflictAlreadyExists        Kind = "conflict_already_exists"
	KindConflictUseUpdate            Kind = "conflict_use_update"
	KindConflictConcurrency          Kind = "conflict_concurrency"
	KindGone                         Kind = "gone"
	KindTransientBrokerTimeout       Kind = "transient_broker_timeout"
	KindTransientBrokerDisconnect    Kind = "transient_broker_disconnect"
	KindTransientSnapshotUnavailable Kind = "transient_snapshot_unavailable"
	KindCorrupt                      Kind = "corrupt"
	KindInternal                     Kind = "internal"
)

// DomainError is the single error type decide, apply, and the adapters
// above them return. Kind drives dispatcher policy; Err, when set, is
// the underlying cause preserved for logging and errors.Is/As chains.
type DomainError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Retryable reports whether the dispatcher should requeue the command
// with backoff rather than treat the rejection as permanent.
func (e *DomainError) Retryable() bool {
	switch e.Kind {
	case KindConflictConcurrency, KindTransientBrokerTimeout, KindTransientBrokerDisconnect, KindTransientSnapshotUnavailable:
		return true
	default:
		return false
	}
}

// New constructs a DomainError with no wrapped cause.
func New(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// Wrap constructs a DomainError around an underlying cause.
func Wrap(kind Kind, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *DomainError,
// and KindInternal otherwise.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}

	return KindInternal
}

// sentinel validation causes, wrapped into ValidationError DomainErrors
// by decide so callers can still errors.Is against the specific cause.
var (
	ErrSelfMerge            = errors.New("aggregate: person cannot merge into itself")
	ErrInvalidateBeforeValidFrom = errors.New("aggregate: invalidation instant precedes attribute's valid_from")
	ErrDeathBeforeBirth     = errors.New("aggregate: death date precedes birth date")
)
