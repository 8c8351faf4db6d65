package dispatcher

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
)

// fakeCommandSource feeds a fixed slice of messages, one per Fetch
// call, and records commits.
type fakeCommandSource struct {
	mutex     sync.Mutex
	messages  []CommandMessage
	next      int
	committed []CommandMessage
	exhausted chan struct{}
}

func newFakeCommandSource(messages []CommandMessage) *fakeCommandSource {
	return &fakeCommandSource{messages: messages, exhausted: make(chan struct{})}
}

func (s *fakeCommandSource) Fetch(ctx context.Context) (CommandMessage, error) {
	s.mutex.Lock()
	if s.next >= len(s.messages) {
		s.mutex.Unlock()
		close(s.exhausted)

		<-ctx.Done()

		return CommandMessage{}, ctx.Err()
	}

	msg := s.messages[s.next]
	s.next++
	s.mutex.Unlock()

	return msg, nil
}

func (s *fakeCommandSource) Commit(_ context.Context, msg CommandMessage) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.committed = append(s.committed, msg)

	return nil
}

func (s *fakeCommandSource) Close() error { return nil }

var _ CommandSource = (*fakeCommandSource)(nil)

// fakeRepository is an in-memory AggregateRepository keyed by aggregate
// id, good enough to exercise the dispatcher's decide/save cycle.
type fakeRepository struct {
	mutex   sync.Mutex
	people  map[string]*person.Person
	saveErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{people: make(map[string]*person.Person)}
}

func (r *fakeRepository) Load(_ context.Context, personID person.ID) (*person.Person, int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.people[personID.String()]
	if !ok {
		return nil, 0, aggregate.New(aggregate.KindNotFound, "not found")
	}

	return p, int64(p.Version), nil
}

func (r *fakeRepository) Save(_ context.Context, personID person.ID, stateAfter *person.Person, _ []personevent.Event, expectedVersion uint64, _, _ string) (uint64, int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.saveErr != nil {
		return 0, 0, r.saveErr
	}

	existing := r.people[personID.String()]

	currentVersion := uint64(0)
	if existing != nil {
		currentVersion = existing.Version
	}

	if currentVersion != expectedVersion {
		return 0, 0, aggregate.New(aggregate.KindConflictConcurrency, "version mismatch")
	}

	r.people[personID.String()] = stateAfter

	return stateAfter.Version, int64(stateAfter.Version), nil
}

var _ AggregateRepository = (*fakeRepository)(nil)

// fakeReplyPublisher records replies and dead letters.
type fakeReplyPublisher struct {
	mutex      sync.Mutex
	replies    []eventstore.CommandReply
	deadLetter []personevent.Envelope
}

func (p *fakeReplyPublisher) PublishEvent(context.Context, person.ID, personevent.Envelope) error {
	return nil
}

func (p *fakeReplyPublisher) PublishDeadLetter(_ context.Context, _ string, env personevent.Envelope, _ eventstore.DeadLetterMeta) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.deadLetter = append(p.deadLetter, env)

	return nil
}

func (p *fakeReplyPublisher) PublishReply(_ context.Context, _ string, reply eventstore.CommandReply) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.replies = append(p.replies, reply)

	return nil
}

func (p *fakeReplyPublisher) Close() error { return nil }

var _ eventstore.Publisher = (*fakeReplyPublisher)(nil)

// fakeQuarantineStore records quarantine calls in memory.
type fakeQuarantineStore struct {
	mutex       sync.Mutex
	quarantined map[string]string
}

func newFakeQuarantineStore() *fakeQuarantineStore {
	return &fakeQuarantineStore{quarantined: make(map[string]string)}
}

func (q *fakeQuarantineStore) Quarantine(_ context.Context, aggregateID person.ID, _, _, reason string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.quarantined[aggregateID.String()] = reason

	return nil
}

func (q *fakeQuarantineStore) IsQuarantined(_ context.Context, aggregateID person.ID) (bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	_, ok := q.quarantined[aggregateID.String()]

	return ok, nil
}

var _ QuarantineStore = (*fakeQuarantineStore)(nil)

func newCreateCommandMessage(t *testing.T, replyTo string) (person.ID, CommandMessage) {
	t.Helper()

	id, err := person.NewID()
	require.NoError(t, err)

	name, err := person.NewPersonName([]string{"Ada"}, []string{"Lovelace"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	cmd := personevent.CreatePerson{PersonID: id, Name: name, Source: "test"}

	env, err := personevent.EncodeCommand(cmd, "corr-1", "", replyTo, nil)
	require.NoError(t, err)

	return id, CommandMessage{Envelope: env, handle: "fake-handle"}
}

func TestDispatcherAppliesCreatePersonAndReplies(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	id, msg := newCreateCommandMessage(t, "reply.topic")

	source := newFakeCommandSource([]CommandMessage{msg})
	repo := newFakeRepository()
	pub := &fakeReplyPublisher{}

	d := New(source, repo, pub, newFakeQuarantineStore(), 4, WithClock(func() time.Time { return time.Unix(0, 0).UTC() }))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- d.Run(ctx) }()

	<-source.exhausted
	waitForCondition(t, func() bool { return len(source.committed) == 1 })

	cancel()
	require.NoError(t, <-done)

	require.Len(t, source.committed, 1)
	require.Len(t, pub.replies, 1)
	require.Equal(t, eventstore.ReplyResultApplied, pub.replies[0].Result)

	_, _, err := repo.Load(ctx, id)
	require.NoError(t, err)
}

func TestDispatcherRejectsDuplicateCreateWithoutRetry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	id, err := person.NewID()
	require.NoError(t, err)

	name, err := person.NewPersonName([]string{"Ada"}, []string{"Lovelace"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	created := personevent.PersonCreated{PersonID: id, Name: name, At: time.Now().UTC(), Source: "test"}

	state, err := aggregate.Apply(nil, created)
	require.NoError(t, err)

	repo := newFakeRepository()
	repo.people[id.String()] = state

	cmd := personevent.CreatePerson{PersonID: id, Name: name, Source: "test"}
	env, err := personevent.EncodeCommand(cmd, "corr-2", "", "reply.topic", nil)
	require.NoError(t, err)

	msg := CommandMessage{Envelope: env, handle: "h"}
	source := newFakeCommandSource([]CommandMessage{msg})
	pub := &fakeReplyPublisher{}

	d := New(source, repo, pub, newFakeQuarantineStore(), 4)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-source.exhausted
	waitForCondition(t, func() bool { return len(source.committed) == 1 })
	cancel()
	require.NoError(t, <-done)

	require.Len(t, pub.replies, 1)
	require.Equal(t, eventstore.ReplyResultRejected, pub.replies[0].Result)
	require.Equal(t, string(aggregate.KindConflictAlreadyExists), pub.replies[0].ErrorKind)
	require.Empty(t, pub.deadLetter)
}

func TestDispatcherDeadLettersAfterExhaustingRetries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, msg := newCreateCommandMessage(t, "")

	source := newFakeCommandSource([]CommandMessage{msg})
	repo := newFakeRepository()
	repo.saveErr = aggregate.New(aggregate.KindTransientBrokerDisconnect, "broker down")
	pub := &fakeReplyPublisher{}

	d := New(source, repo, pub, newFakeQuarantineStore(), 4, WithRetryPolicy(time.Millisecond, time.Millisecond, 2))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-source.exhausted
	waitForCondition(t, func() bool { return len(source.committed) == 1 })
	cancel()
	require.NoError(t, <-done)

	require.Len(t, pub.deadLetter, 1)
}

func TestDispatcherSkipsQuarantinedAggregate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	id, msg := newCreateCommandMessage(t, "")

	source := newFakeCommandSource([]CommandMessage{msg})
	repo := newFakeRepository()
	quarantine := newFakeQuarantineStore()
	require.NoError(t, quarantine.Quarantine(context.Background(), id, "CreatePerson", "corr-1", "corrupt history"))

	d := New(source, repo, &fakeReplyPublisher{}, quarantine, 4)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-source.exhausted
	waitForCondition(t, func() bool { return len(source.committed) == 1 })
	cancel()
	require.NoError(t, <-done)

	_, _, err := repo.Load(context.Background(), id)
	require.Error(t, err)
	require.Equal(t, aggregate.KindNotFound, aggregate.KindOf(err))
}

func TestDispatcherSerializesCommandsForSameAggregate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	id, createMsg := newCreateCommandMessage(t, "")

	newName, err := person.NewPersonName([]string{"Augusta"}, []string{"King"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	require.NoError(t, err)

	updateCmd := personevent.UpdateName{PersonID: id, NewName: newName, Reason: "legal change"}
	updateEnv, err := personevent.EncodeCommand(updateCmd, "corr-2", "", "", nil)
	require.NoError(t, err)

	source := newFakeCommandSource([]CommandMessage{createMsg, {Envelope: updateEnv, handle: "h2"}})
	repo := newFakeRepository()

	d := New(source, repo, &fakeReplyPublisher{}, newFakeQuarantineStore(), 8)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-source.exhausted
	waitForCondition(t, func() bool { return len(source.committed) == 2 })
	cancel()
	require.NoError(t, <-done)

	// Both commands target the same aggregate; the lock table must have
	// serialized create-then-update rather than racing them, or the
	// version below would not land on exactly 2.
	loaded, _, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), loaded.Version)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	require.FailNow(t, "condition not met before deadline")
}
