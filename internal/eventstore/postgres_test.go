package eventstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

func newMockStore(t *testing.T) (*PostgresEventStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	store := &PostgresEventStore{
		conn:        &Connection{db},
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	close(store.cleanupDone)

	return store, mock
}

func sampleEnvelope(t *testing.T) personevent.Envelope {
	t.Helper()

	id, err := person.ParseID("4b1f7e2a-df3f-4a8a-9f1a-1d2c3b4a5e6f")
	if err != nil {
		t.Fatalf("ParseID() error: %v", err)
	}

	return personevent.Envelope{
		MessageID:        "msg-1",
		CorrelationID:    "corr-1",
		RecordedAt:       time.Unix(1, 0).UTC(),
		SchemaVersion:    personevent.CurrentSchemaVersion,
		Kind:             personevent.EnvelopeKindEvent,
		Tag:              "person_created",
		AggregateID:      id.String(),
		AggregateVersion: 1,
		Payload:          []byte(`{}`),
	}
}

func TestPostgresAppendReturnsSequenceOnSuccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockStore(t)
	env := sampleEnvelope(t)
	id, _ := person.ParseID(env.AggregateID)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO person_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(42)))
	mock.ExpectCommit()

	ack, err := store.Append(context.Background(), id, env, 1)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if ack.Sequence != 42 {
		t.Errorf("expected sequence 42, got %d", ack.Sequence)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendConcurrencyConflict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockStore(t)
	env := sampleEnvelope(t)
	id, _ := person.ParseID(env.AggregateID)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO person_events").
		WillReturnError(&pq.Error{Code: uniqueViolationCode, Constraint: "person_events_aggregate_version_key"})
	mock.ExpectRollback()

	_, err := store.Append(context.Background(), id, env, 1)
	if err != ErrConcurrencyConflict {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
}

func TestPostgresAppendIdempotentOnMessageID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockStore(t)
	env := sampleEnvelope(t)
	id, _ := person.ParseID(env.AggregateID)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO person_events").
		WillReturnError(&pq.Error{Code: uniqueViolationCode, Constraint: "person_events_message_id_key"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT sequence FROM person_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(int64(7)))

	ack, err := store.Append(context.Background(), id, env, 1)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	if ack.Sequence != 7 {
		t.Errorf("expected sequence 7 from prior attempt, got %d", ack.Sequence)
	}
}

func TestPostgresReplayDecodesEnvelopes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockStore(t)
	env := sampleEnvelope(t)
	id, _ := person.ParseID(env.AggregateID)

	// PersonCreated needs a real payload to decode.
	env.Payload = []byte(`{"person_id":"` + id.String() + `","name":{"family_name":"Johnson"},"at":"2020-01-01T00:00:00Z","source":"test"}`)

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	mock.ExpectQuery("SELECT sequence, envelope FROM person_events").
		WillReturnRows(sqlmock.NewRows([]string{"sequence", "envelope"}).AddRow(int64(1), raw))

	events, err := store.Replay(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	if events[0].Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", events[0].Sequence)
	}
}

func TestPostgresMarkProcessedDetectsRedelivery(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO processed_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))

	alreadyProcessed, err := store.MarkProcessed(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("MarkProcessed() error: %v", err)
	}

	if !alreadyProcessed {
		t.Error("expected alreadyProcessed=true when no rows affected")
	}
}
