// Package dispatcher implements the command dispatcher (C7): the
// durable consumer loop that turns inbound commands into decide/apply
// cycles against the repository, serialized per aggregate id.
package dispatcher

import (
	"context"
	"time"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// AggregateRepository is the subset of repository.Repository the
// dispatcher depends on, kept narrow so tests can supply an in-memory
// fake instead of a real Postgres-backed repository.
type AggregateRepository interface {
	Load(ctx context.Context, personID person.ID) (*person.Person, int64, error)
	Save(ctx context.Context, personID person.ID, stateAfter *person.Person, events []personevent.Event, expectedVersion uint64, correlationID, causationID string) (newVersion uint64, lastSequence int64, err error)
}

// CommandMessage is one delivery from a CommandSource: the decoded
// envelope plus an opaque handle the source needs back to acknowledge
// it.
type CommandMessage struct {
	Envelope personevent.Envelope
	handle   any
}

// CommandSource is the durable consumer contract the dispatcher pulls
// from. Fetch blocks until a message is available or ctx is done.
// Commit acknowledges a message has been fully handled (including the
// no-retry-left dead-letter path) so it is never redelivered.
type CommandSource interface {
	Fetch(ctx context.Context) (CommandMessage, error)
	Commit(ctx context.Context, msg CommandMessage) error
	Close() error
}

// QuarantineStore records aggregates the dispatcher has given up on
// because their event history failed Apply (§4.6 step 2, Corrupt).
// A quarantined aggregate is never retried automatically; an operator
// must investigate and clear it.
type QuarantineStore interface {
	Quarantine(ctx context.Context, aggregateID person.ID, failedCommandKind, correlationID, reason string) error
	IsQuarantined(ctx context.Context, aggregateID person.ID) (bool, error)
}

// retryPolicy bounds the in-process redelivery backoff applied to
// recoverable errors (§4.7 step 7): base 100ms, cap 30s, jitter,
// bounded attempts before dead-lettering.
type retryPolicy struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
}
