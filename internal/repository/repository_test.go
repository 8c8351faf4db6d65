package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/persondomain/persond/internal/aggregate"
	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
	"github.com/persondomain/persond/internal/snapshot"
)

// fakeEventStore is an in-memory stand-in for eventstore.Store, keyed
// by aggregate id, good enough to exercise Load/Save without a
// database.
type fakeEventStore struct {
	mutex  sync.Mutex
	byAggr map[string][]eventstore.StoredEvent
	seq    int64

	failReplay error
	failAppend error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{byAggr: make(map[string][]eventstore.StoredEvent)}
}

func (f *fakeEventStore) Append(_ context.Context, aggregateID person.ID, env personevent.Envelope, expectedVersion uint64) (eventstore.AppendAck, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.failAppend != nil {
		return eventstore.AppendAck{}, f.failAppend
	}

	existing := f.byAggr[aggregateID.String()]
	if uint64(len(existing))+1 != expectedVersion {
		return eventstore.AppendAck{}, eventstore.ErrConcurrencyConflict
	}

	event, err := personevent.DecodeEvent(env)
	if err != nil {
		return eventstore.AppendAck{}, err
	}

	f.seq++
	f.byAggr[aggregateID.String()] = append(existing, eventstore.StoredEvent{Sequence: f.seq, Envelope: env, Event: event})

	return eventstore.AppendAck{Sequence: f.seq}, nil
}

func (f *fakeEventStore) Replay(_ context.Context, aggregateID person.ID, fromVersion uint64) ([]eventstore.StoredEvent, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.failReplay != nil {
		return nil, f.failReplay
	}

	var out []eventstore.StoredEvent

	for _, se := range f.byAggr[aggregateID.String()] {
		if se.Envelope.AggregateVersion >= fromVersion {
			out = append(out, se)
		}
	}

	return out, nil
}

func (f *fakeEventStore) HealthCheck(context.Context) error { return nil }

func (f *fakeEventStore) MarkProcessed(context.Context, string) (bool, error) { return false, nil }

func (f *fakeEventStore) Close() error { return nil }

var _ eventstore.Store = (*fakeEventStore)(nil)

// fakePublisher records every event published, for assertions, and
// never fails.
type fakePublisher struct {
	mutex      sync.Mutex
	published  []personevent.Envelope
	deadLetter []personevent.Envelope
}

func (p *fakePublisher) PublishEvent(_ context.Context, _ person.ID, env personevent.Envelope) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.published = append(p.published, env)

	return nil
}

func (p *fakePublisher) PublishDeadLetter(_ context.Context, _ string, env personevent.Envelope, _ eventstore.DeadLetterMeta) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.deadLetter = append(p.deadLetter, env)

	return nil
}

func (p *fakePublisher) PublishReply(context.Context, string, eventstore.CommandReply) error { return nil }

func (p *fakePublisher) Close() error { return nil }

var _ eventstore.Publisher = (*fakePublisher)(nil)

func newTestPerson(t *testing.T) (person.ID, personevent.PersonCreated) {
	t.Helper()

	id, err := person.NewID()
	require.NoError(t, err)

	name, err := person.NewPersonName([]string{"Alice"}, []string{"Johnson"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	return id, personevent.PersonCreated{PersonID: id, Name: name, At: time.Now().UTC(), Source: "test"}
}

func TestRepositoryLoadReturnsNotFoundForUnknownAggregate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	repo := New(newFakeEventStore(), nil, snapshot.NewInMemoryStore())

	id, err := person.NewID()
	require.NoError(t, err)

	_, _, err = repo.Load(context.Background(), id)
	require.Error(t, err)
	require.Equal(t, aggregate.KindNotFound, aggregate.KindOf(err))
}

func TestRepositorySaveThenLoadRoundTrips(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := newFakeEventStore()
	pub := &fakePublisher{}
	repo := New(events, pub, snapshot.NewInMemoryStore())

	ctx := context.Background()
	id, created := newTestPerson(t)

	stateAfter, err := aggregate.Apply(nil, created)
	require.NoError(t, err)

	newVersion, lastSeq, err := repo.Save(ctx, id, stateAfter, []personevent.Event{created}, 0, "corr-1", "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), newVersion)
	require.Positive(t, lastSeq)
	require.Len(t, pub.published, 1)

	loaded, loadedSeq, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.Version)
	require.Equal(t, lastSeq, loadedSeq)
	require.Equal(t, id, loaded.ID)
}

func TestRepositorySaveConcurrencyConflict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := newFakeEventStore()
	repo := New(events, nil, snapshot.NewInMemoryStore())

	ctx := context.Background()
	id, created := newTestPerson(t)

	stateAfter, err := aggregate.Apply(nil, created)
	require.NoError(t, err)

	_, _, err = repo.Save(ctx, id, stateAfter, []personevent.Event{created}, 0, "corr-1", "")
	require.NoError(t, err)

	// Saving again at the same expected version races a prior writer.
	_, _, err = repo.Save(ctx, id, stateAfter, []personevent.Event{created}, 0, "corr-2", "")
	require.Error(t, err)
	require.Equal(t, aggregate.KindConflictConcurrency, aggregate.KindOf(err))
}

func TestRepositoryLoadDetectsCorruptVersionGap(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := newFakeEventStore()
	repo := New(events, nil, snapshot.NewInMemoryStore())

	ctx := context.Background()
	id, created := newTestPerson(t)

	env, err := personevent.EncodeEvent(created, 1, "corr-1", "")
	require.NoError(t, err)

	_, err = events.Append(ctx, id, env, 1)
	require.NoError(t, err)

	// Skip straight to version 3, leaving a gap the replay should catch.
	name, err := person.NewPersonName([]string{"Alice"}, []string{"Smith"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	nameUpdated := personevent.NameUpdated{PersonID: id, OldName: created.Name, NewName: name, At: time.Now().UTC()}

	env2, err := personevent.EncodeEvent(nameUpdated, 3, "corr-2", "")
	require.NoError(t, err)

	events.mutex.Lock()
	events.byAggr[id.String()] = append(events.byAggr[id.String()], eventstore.StoredEvent{Sequence: 99, Envelope: env2, Event: nameUpdated})
	events.mutex.Unlock()

	_, _, err = repo.Load(ctx, id)
	require.Error(t, err)
	require.Equal(t, aggregate.KindCorrupt, aggregate.KindOf(err))
}

func TestRepositorySaveSnapshotsAtConfiguredFrequency(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := newFakeEventStore()
	snapshots := snapshot.NewInMemoryStore()
	repo := New(events, nil, snapshots, WithSnapshotFrequency(1))

	ctx := context.Background()
	id, created := newTestPerson(t)

	stateAfter, err := aggregate.Apply(nil, created)
	require.NoError(t, err)

	_, _, err = repo.Save(ctx, id, stateAfter, []personevent.Event{created}, 0, "corr-1", "")
	require.NoError(t, err)

	snap, err := snapshots.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Version)
	require.Equal(t, id, snap.State.ID)
}

func TestRepositoryLoadResumesFromSnapshot(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	events := newFakeEventStore()
	snapshots := snapshot.NewInMemoryStore()
	repo := New(events, nil, snapshots)

	ctx := context.Background()
	id, created := newTestPerson(t)

	env, err := personevent.EncodeEvent(created, 1, "corr-1", "")
	require.NoError(t, err)

	ack, err := events.Append(ctx, id, env, 1)
	require.NoError(t, err)

	stateAfterCreate, err := aggregate.Apply(nil, created)
	require.NoError(t, err)

	require.NoError(t, snapshots.Put(ctx, id, snapshot.Snapshot{Version: 1, FromSequence: ack.Sequence, State: stateAfterCreate}))

	loaded, _, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loaded.Version)

	// Replay starts after the snapshot's version, so the PersonCreated
	// already folded into the snapshot is not applied a second time and
	// the loaded state is the snapshot's.
	require.Equal(t, loaded.CoreIdentity.LegalName, created.Name)
}
