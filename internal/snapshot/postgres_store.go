package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
)

// PostgresStore persists snapshots alongside the event log. Kept
// distinct from the authoritative person_events table: a corrupt or
// missing row here never blocks a command, it only costs a full
// replay.
type PostgresStore struct {
	conn *eventstore.Connection
}

// NewPostgresStore wraps conn as a snapshot store.
func NewPostgresStore(conn *eventstore.Connection) (*PostgresStore, error) {
	if conn == nil {
		return nil, eventstore.ErrNoDatabaseConnection
	}

	return &PostgresStore{conn: conn}, nil
}

var _ Store = (*PostgresStore)(nil)

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, personID person.ID) (Snapshot, error) {
	const query = `
		SELECT version, from_sequence, state FROM person_snapshots WHERE aggregate_id = $1
	`

	var (
		version      uint64
		fromSequence int64
		raw          []byte
	)

	err := s.conn.QueryRowContext(ctx, query, personID.String()).Scan(&version, &fromSequence, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}

	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: querying %s: %w", personID, err)
	}

	var state person.Person
	if err := json.Unmarshal(raw, &state); err != nil {
		// Version drift / corrupt payload: the repository treats this
		// identically to a missing snapshot and falls back to full replay.
		RecordCorruptionFallback()

		return Snapshot{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return Snapshot{Version: version, FromSequence: fromSequence, State: &state}, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, personID person.ID, snap Snapshot) error {
	raw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("snapshot: marshaling state for %s: %w", personID, err)
	}

	const upsertQuery = `
		INSERT INTO person_snapshots (aggregate_id, version, from_sequence, state, taken_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (aggregate_id) DO UPDATE
			SET version = EXCLUDED.version,
			    from_sequence = EXCLUDED.from_sequence,
			    state = EXCLUDED.state,
			    taken_at = NOW()
	`

	if _, err := s.conn.ExecContext(ctx, upsertQuery, personID.String(), snap.Version, snap.FromSequence, raw); err != nil {
		return fmt.Errorf("snapshot: storing %s: %w", personID, err)
	}

	return nil
}

// Invalidate implements Store.
func (s *PostgresStore) Invalidate(ctx context.Context, personID person.ID) error {
	const deleteQuery = `DELETE FROM person_snapshots WHERE aggregate_id = $1`

	if _, err := s.conn.ExecContext(ctx, deleteQuery, personID.String()); err != nil {
		return fmt.Errorf("snapshot: invalidating %s: %w", personID, err)
	}

	return nil
}
