// Package eventstore implements the durable, append-only event log (C4)
// the aggregate core is replayed from. Two transports divide the work:
// Postgres is the authoritative log (idempotent append, ordered replay
// by aggregate), and Kafka is the pub/sub fanout that broadcasts
// appended events to downstream subscribers outside the core.
package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// Sentinel errors returned by Store implementations.
var (
	ErrNoDatabaseConnection = errors.New("eventstore: no database connection")
	ErrConcurrencyConflict  = errors.New("eventstore: concurrent writer advanced the aggregate")
	ErrEventStoreFailed     = errors.New("eventstore: append failed")
	ErrCorruptHistory       = errors.New("eventstore: stored history is not well-formed")

	// ErrTransientBrokerUnreachable is returned when the Kafka broker
	// cannot be dialed or a topic cannot be provisioned.
	ErrTransientBrokerUnreachable = errors.New("eventstore: broker unreachable")
)

// StoredEvent pairs a decoded event with its envelope metadata, as
// delivered by Replay.
type StoredEvent struct {
	Sequence int64
	Envelope personevent.Envelope
	Event    personevent.Event
}

// AppendAck confirms durable publication of one event.
type AppendAck struct {
	Sequence int64
}

// Store is the durable append-only log contract the repository (C6)
// depends on.
type Store interface {
	// Append durably stores one event for aggregateID at
	// expectedVersion (the event's own post-apply version). If a
	// concurrent writer already advanced the aggregate past
	// expectedVersion-1, Append returns ErrConcurrencyConflict.
	Append(ctx context.Context, aggregateID person.ID, envelope personevent.Envelope, expectedVersion uint64) (AppendAck, error)

	// Replay delivers, in ascending aggregate_version order, every
	// event recorded for aggregateID at or after fromVersion.
	Replay(ctx context.Context, aggregateID person.ID, fromVersion uint64) ([]StoredEvent, error)

	// HealthCheck reports whether the store can currently serve reads
	// and writes.
	HealthCheck(ctx context.Context) error

	// MarkProcessed records messageID as seen for the redelivery dedup
	// window and reports whether it was already recorded (a
	// redelivery) before this call. The dispatcher does not call it, so
	// redelivered commands are not deduplicated by message_id.
	MarkProcessed(ctx context.Context, messageID string) (alreadyProcessed bool, err error)

	// Close releases resources. Safe to call more than once.
	Close() error
}

// Publisher broadcasts already-durable events to downstream
// subscribers. Publication failures here never roll back an Append:
// the Postgres log is authoritative, Kafka is best-effort fanout.
type Publisher interface {
	PublishEvent(ctx context.Context, aggregateID person.ID, envelope personevent.Envelope) error

	// PublishDeadLetter records a command the dispatcher gave up
	// retrying, carrying enough retry history (attempt count, when
	// the first attempt happened) that an operator can judge whether
	// replaying it is safe without digging through logs.
	PublishDeadLetter(ctx context.Context, commandKind string, envelope personevent.Envelope, meta DeadLetterMeta) error

	// PublishReply delivers a command reply to replyTo, the free-form
	// subject/topic name a command's sender asked to be answered on.
	PublishReply(ctx context.Context, replyTo string, reply CommandReply) error

	Close() error
}

// DeadLetterMeta carries the retry history surrounding a dead-lettered
// command, alongside the terminal error that stopped retries.
type DeadLetterMeta struct {
	Reason            string    `json:"reason"`
	AttemptCount      int       `json:"attempt_count"`
	FirstAttemptedAt  time.Time `json:"first_attempted_at"`
}

// CommandReply is what the dispatcher (C7) sends back on a command's
// ReplyTo subject: either an acknowledgement of the outcome or a
// typed rejection, never both.
type CommandReply struct {
	CommandID     string `json:"command_id"`
	CorrelationID string `json:"correlation_id"`
	Result        string `json:"result"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	NewVersion    uint64 `json:"new_version,omitempty"`
}

// Reply results.
const (
	ReplyResultApplied = "applied"
	ReplyResultNoChange = "no_change"
	ReplyResultRejected = "rejected"
)

// dedupWindow is the minimum interval a message_id must be remembered
// for before it may be forgotten, per the stream's deduplication
// window (spec default: 2 minutes).
const dedupWindow = 2 * time.Minute
