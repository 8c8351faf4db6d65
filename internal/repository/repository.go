// Package repository implements the load/save rehydration contract
// (C6) that sits between the dispatcher and the two storage adapters:
// the durable event log (eventstore) and the advisory snapshot cache
// (snapshot). It is the only place aggregate.Apply is called outside
// tests, and the only place a fresh aggregate is assembled from
// persisted history.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/persondomain/persond/internal/aggregate"
	"github.com/persondomain/persond/internal/config"
	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
	"github.com/persondomain/persond/internal/snapshot"
)

// defaultSnapshotFrequency mirrors the service-wide default (every 100
// applied events) used when a caller does not set one explicitly.
const defaultSnapshotFrequency = 100

// Repository loads and saves person aggregates, combining the
// authoritative event log with an advisory snapshot cache to bound
// replay cost.
type Repository struct {
	events            eventstore.Store
	publisher         eventstore.Publisher
	snapshots         snapshot.Store
	snapshotFrequency int
	logger            *slog.Logger
}

// Option configures a Repository at construction time.
type Option func(*Repository)

// WithLogger overrides the repository's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

// WithSnapshotFrequency overrides how often Save takes a new snapshot.
// frequency < 1 disables snapshotting entirely.
func WithSnapshotFrequency(frequency int) Option {
	return func(r *Repository) { r.snapshotFrequency = frequency }
}

// New builds a Repository over the given event log, publisher, and
// snapshot cache. publisher may be nil, in which case Save skips
// downstream fanout (the event log remains durable either way).
func New(events eventstore.Store, publisher eventstore.Publisher, snapshots snapshot.Store, opts ...Option) *Repository {
	r := &Repository{
		events:            events,
		publisher:         publisher,
		snapshots:         snapshots,
		snapshotFrequency: defaultSnapshotFrequency,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("PERSON_LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Load rehydrates personID's current state by starting from the
// newest advisory snapshot (if any) and replaying every event
// recorded since. A missing or corrupt snapshot is never fatal: it
// only costs a full replay from the beginning of the log. A gap or
// mismatch in the event log itself, however, is reported as Corrupt,
// since that means the durable history cannot be trusted.
//
// The returned last-sequence value is the log sequence of the most
// recently applied event, or the snapshot's FromSequence when no event
// was replayed after it.
func (r *Repository) Load(ctx context.Context, personID person.ID) (*person.Person, int64, error) {
	state, fromVersion, lastSequence := r.startFromSnapshot(ctx, personID)

	stored, err := r.events.Replay(ctx, personID, fromVersion)
	if err != nil {
		if errors.Is(err, eventstore.ErrCorruptHistory) {
			return nil, 0, aggregate.Wrap(aggregate.KindCorrupt, "event log did not decode cleanly", err)
		}

		return nil, 0, aggregate.Wrap(aggregate.KindTransientBrokerDisconnect, "replay failed", err)
	}

	for _, se := range stored {
		expectedVersion := uint64(1)
		if state != nil {
			expectedVersion = state.Version + 1
		}

		if se.Envelope.AggregateVersion != expectedVersion {
			return nil, 0, aggregate.New(aggregate.KindCorrupt,
				fmt.Sprintf("event at sequence %d has version %d, expected %d", se.Sequence, se.Envelope.AggregateVersion, expectedVersion))
		}

		next, err := aggregate.Apply(state, se.Event)
		if err != nil {
			return nil, 0, err
		}

		state = next
		lastSequence = se.Sequence
	}

	if state == nil {
		return nil, 0, aggregate.New(aggregate.KindNotFound, fmt.Sprintf("aggregate %s does not exist", personID))
	}

	return state, lastSequence, nil
}

// startFromSnapshot attempts to seed replay from the latest cached
// snapshot. Any snapshot read failure, including deserialization
// drift, degrades to a full replay rather than failing the load.
func (r *Repository) startFromSnapshot(ctx context.Context, personID person.ID) (state *person.Person, fromVersion uint64, lastSequence int64) {
	snap, err := r.snapshots.Get(ctx, personID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			r.logger.Warn("snapshot read failed, falling back to full replay",
				slog.String("person_id", personID.String()), slog.String("error", err.Error()))
		}

		return nil, 1, 0
	}

	return snap.State, snap.Version + 1, snap.FromSequence
}

// Save durably appends events (produced by a single decide call,
// starting at expectedVersion+1) and, on success, advances the
// snapshot cache if the post-save version crosses the configured
// frequency. stateAfter is the aggregate state resulting from folding
// events onto the caller's pre-state; it is used only for snapshot
// persistence, never for the append itself.
//
// Events are appended one at a time in order. A ConcurrencyConflict on
// any event aborts the whole command: events already acknowledged
// before the conflicting one remain durable, but the caller must not
// retry blindly, since by convention every command in the closed
// command set produces at most one event, so partial writes are not a
// concern in practice.
func (r *Repository) Save(ctx context.Context, personID person.ID, stateAfter *person.Person, events []personevent.Event, expectedVersion uint64, correlationID, causationID string) (newVersion uint64, lastSequence int64, err error) {
	newVersion = expectedVersion

	for i, event := range events {
		version := expectedVersion + uint64(i) + 1

		env, err := personevent.EncodeEvent(event, version, correlationID, causationID)
		if err != nil {
			return expectedVersion, lastSequence, fmt.Errorf("repository: encoding event for %s: %w", personID, err)
		}

		ack, err := r.events.Append(ctx, personID, env, version)
		if err != nil {
			if errors.Is(err, eventstore.ErrConcurrencyConflict) {
				return expectedVersion, lastSequence, aggregate.Wrap(aggregate.KindConflictConcurrency, "concurrent writer advanced the aggregate", err)
			}

			return expectedVersion, lastSequence, aggregate.Wrap(aggregate.KindTransientBrokerDisconnect, "append failed", err)
		}

		lastSequence = ack.Sequence
		newVersion = version

		if r.publisher != nil {
			if perr := r.publisher.PublishEvent(ctx, personID, env); perr != nil {
				r.logger.Error("downstream publish failed, event log append remains authoritative",
					slog.String("person_id", personID.String()), slog.Int64("sequence", ack.Sequence), slog.String("error", perr.Error()))
			}
		}
	}

	if stateAfter != nil && snapshot.ShouldSnapshot(newVersion, r.snapshotFrequency) {
		snap := snapshot.Snapshot{Version: newVersion, FromSequence: lastSequence, State: stateAfter}
		if perr := r.snapshots.Put(ctx, personID, snap); perr != nil {
			r.logger.Warn("snapshot put failed, next load will replay further",
				slog.String("person_id", personID.String()), slog.String("error", perr.Error()))
		}
	}

	return newVersion, lastSequence, nil
}
