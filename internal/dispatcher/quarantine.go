package dispatcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/persondomain/persond/internal/eventstore"
	"github.com/persondomain/persond/internal/person"
)

// PostgresQuarantineStore records aggregates the dispatcher refuses to
// keep processing because Apply reported their history as Corrupt. It
// is deliberately separate from the event log and snapshot tables: a
// quarantine entry is an operator-facing fact, not replay state.
type PostgresQuarantineStore struct {
	conn *eventstore.Connection
}

// NewPostgresQuarantineStore wraps conn as a quarantine store.
func NewPostgresQuarantineStore(conn *eventstore.Connection) (*PostgresQuarantineStore, error) {
	if conn == nil {
		return nil, eventstore.ErrNoDatabaseConnection
	}

	return &PostgresQuarantineStore{conn: conn}, nil
}

var _ QuarantineStore = (*PostgresQuarantineStore)(nil)

// Quarantine implements QuarantineStore. Quarantining the same
// aggregate again refreshes the recorded reason rather than erroring,
// since a corrupt aggregate will keep failing the same way on every
// redelivery until an operator intervenes.
func (s *PostgresQuarantineStore) Quarantine(ctx context.Context, aggregateID person.ID, failedCommandKind, correlationID, reason string) error {
	const upsertQuery = `
		INSERT INTO quarantined_aggregates (aggregate_id, reason, failed_kind, correlation_id, quarantined_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (aggregate_id) DO UPDATE
			SET reason = EXCLUDED.reason,
			    failed_kind = EXCLUDED.failed_kind,
			    correlation_id = EXCLUDED.correlation_id,
			    quarantined_at = NOW(),
			    cleared_at = NULL
	`

	if _, err := s.conn.ExecContext(ctx, upsertQuery, aggregateID.String(), reason, failedCommandKind, correlationID); err != nil {
		return fmt.Errorf("dispatcher: quarantining %s: %w", aggregateID, err)
	}

	return nil
}

// IsQuarantined implements QuarantineStore, reporting true only while
// no operator has cleared the entry.
func (s *PostgresQuarantineStore) IsQuarantined(ctx context.Context, aggregateID person.ID) (bool, error) {
	const query = `SELECT 1 FROM quarantined_aggregates WHERE aggregate_id = $1 AND cleared_at IS NULL`

	var exists int

	err := s.conn.QueryRowContext(ctx, query, aggregateID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("dispatcher: checking quarantine for %s: %w", aggregateID, err)
	}

	return true, nil
}
