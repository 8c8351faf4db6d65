package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
)

func newMockSnapshotStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresStore(&eventstore.Connection{db})
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}

	return store, mock
}

func samplePerson(t *testing.T) *person.Person {
	t.Helper()

	id, err := person.NewID()
	if err != nil {
		t.Fatalf("NewID() error: %v", err)
	}

	name, err := person.NewPersonName([]string{"Alice"}, []string{"Johnson"}, "", nil, nil, person.NamingConventionWestern, "en-US")
	if err != nil {
		t.Fatalf("NewPersonName() error: %v", err)
	}

	core, err := person.NewCoreIdentity(name, nil, nil, time.Unix(1, 0).UTC(), time.Unix(1, 0).UTC())
	if err != nil {
		t.Fatalf("NewCoreIdentity() error: %v", err)
	}

	return &person.Person{
		ID:           id,
		CoreIdentity: core,
		Attributes:   person.NewAttributeSet(),
		Lifecycle:    person.ActiveLifecycle(),
		Version:      3,
	}
}

func TestPostgresSnapshotStoreGetReturnsNotFoundWhenMissing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockSnapshotStore(t)

	id, err := person.NewID()
	if err != nil {
		t.Fatalf("NewID() error: %v", err)
	}

	mock.ExpectQuery("SELECT version, from_sequence, state FROM person_snapshots").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "from_sequence", "state"}))

	_, err = store.Get(context.Background(), id)
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSnapshotStoreGetDecodesState(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockSnapshotStore(t)
	p := samplePerson(t)

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal person: %v", err)
	}

	mock.ExpectQuery("SELECT version, from_sequence, state FROM person_snapshots").
		WithArgs(p.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "from_sequence", "state"}).
			AddRow(uint64(3), int64(10), raw))

	snap, err := store.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if snap.Version != 3 || snap.FromSequence != 10 {
		t.Errorf("unexpected snapshot header: %+v", snap)
	}

	if snap.State.ID != p.ID {
		t.Errorf("expected decoded person ID %s, got %s", p.ID, snap.State.ID)
	}

	if len(snap.State.Attributes.All()) != 0 {
		t.Errorf("expected empty attribute set to round-trip empty, got %d rows", len(snap.State.Attributes.All()))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSnapshotStoreGetCorruptPayloadIsNotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockSnapshotStore(t)

	id, err := person.NewID()
	if err != nil {
		t.Fatalf("NewID() error: %v", err)
	}

	mock.ExpectQuery("SELECT version, from_sequence, state FROM person_snapshots").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "from_sequence", "state"}).
			AddRow(uint64(3), int64(10), []byte(`not json`)))

	_, err = store.Get(context.Background(), id)
	if err == nil {
		t.Fatal("expected an error for corrupt payload")
	}

	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected error to wrap ErrNotFound, got %v", err)
	}
}

func TestPostgresSnapshotStorePutUpserts(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockSnapshotStore(t)
	p := samplePerson(t)

	mock.ExpectExec("INSERT INTO person_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Put(context.Background(), p.ID, Snapshot{Version: 3, FromSequence: 10, State: p})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSnapshotStoreInvalidateDeletes(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockSnapshotStore(t)

	id, err := person.NewID()
	if err != nil {
		t.Fatalf("NewID() error: %v", err)
	}

	mock.ExpectExec("DELETE FROM person_snapshots").
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Invalidate(context.Background(), id)
	if err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
