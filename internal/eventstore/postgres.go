package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/persondomain/persond/internal/config"
	"github.com/persondomain/persond/internal/person"
	"github.com/persondomain/persond/internal/personevent"
)

// Cleanup configuration for the message_id dedup window.
const (
	cleanupQueryTimeout = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
	cleanupBatchSize    = 10000
	batchSleepDuration  = 100 * time.Millisecond

	uniqueViolationCode = "23505"
)

// PostgresEventStore implements Store on top of an append-only
// person_events table. Durability comes from Postgres; Append is
// idempotent on message_id and enforces optimistic concurrency on
// (aggregate_id, aggregate_version). A separate processed_messages
// table, pruned by a background goroutine on a rolling dedup window,
// backs MarkProcessed's command-redelivery detection.
type PostgresEventStore struct {
	conn            *Connection
	logger          *slog.Logger
	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// PostgresEventStoreOption configures optional PostgresEventStore
// behavior.
type PostgresEventStoreOption func(*PostgresEventStore)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) PostgresEventStoreOption {
	return func(s *PostgresEventStore) {
		s.logger = logger
	}
}

// NewPostgresEventStore creates a Postgres-backed event log with a
// background goroutine that expires message_id dedup rows older than
// the deduplication window.
func NewPostgresEventStore(
	conn *Connection,
	cleanupInterval time.Duration,
	opts ...PostgresEventStoreOption,
) (*PostgresEventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	if cleanupInterval <= 0 {
		cleanupInterval = dedupWindow
	}

	store := &PostgresEventStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("PERSON_LOG_LEVEL", slog.LevelInfo),
		})),
		cleanupInterval: cleanupInterval,
		cleanupStop:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	go store.runCleanup()

	store.logger.Info("started event store dedup cleanup goroutine", slog.Duration("interval", cleanupInterval))

	return store, nil
}

var _ Store = (*PostgresEventStore)(nil)

// Append implements Store.
func (s *PostgresEventStore) Append(
	ctx context.Context,
	aggregateID person.ID,
	envelope personevent.Envelope,
	expectedVersion uint64,
) (AppendAck, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return AppendAck{}, fmt.Errorf("%w: marshaling envelope: %w", ErrEventStoreFailed, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return AppendAck{}, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertQuery = `
		INSERT INTO person_events (
			aggregate_id, aggregate_version, message_id, correlation_id,
			causation_id, kind, tag, recorded_at, envelope
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sequence
	`

	var sequence int64

	err = tx.QueryRowContext(
		ctx, insertQuery,
		aggregateID.String(), expectedVersion, envelope.MessageID, envelope.CorrelationID,
		nullableString(envelope.CausationID), envelope.Kind, envelope.Tag, envelope.RecordedAt, payload,
	).Scan(&sequence)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			if strings.Contains(pqErr.Constraint, "message_id") {
				_ = tx.Rollback()

				return s.existingAckFor(ctx, envelope.MessageID)
			}

			return AppendAck{}, ErrConcurrencyConflict
		}

		return AppendAck{}, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return AppendAck{}, fmt.Errorf("%w: committing: %w", ErrEventStoreFailed, err)
	}

	return AppendAck{Sequence: sequence}, nil
}

// existingAckFor returns the ack already recorded for a message_id
// that was appended by a prior, successful attempt at the same write
// (the producer retried after losing the response).
func (s *PostgresEventStore) existingAckFor(ctx context.Context, messageID string) (AppendAck, error) {
	const query = `SELECT sequence FROM person_events WHERE message_id = $1`

	var sequence int64

	if err := s.conn.QueryRowContext(ctx, query, messageID).Scan(&sequence); err != nil {
		return AppendAck{}, fmt.Errorf("%w: resolving idempotent append: %w", ErrEventStoreFailed, err)
	}

	return AppendAck{Sequence: sequence}, nil
}

// Replay implements Store.
func (s *PostgresEventStore) Replay(
	ctx context.Context,
	aggregateID person.ID,
	fromVersion uint64,
) ([]StoredEvent, error) {
	const query = `
		SELECT sequence, envelope FROM person_events
		WHERE aggregate_id = $1 AND aggregate_version >= $2
		ORDER BY aggregate_version ASC
	`

	rows, err := s.conn.QueryContext(ctx, query, aggregateID.String(), fromVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredEvent

	for rows.Next() {
		var (
			sequence int64
			raw      []byte
		)

		if err := rows.Scan(&sequence, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
		}

		var envelope personevent.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decoding envelope at sequence %d: %w", ErrCorruptHistory, sequence, err)
		}

		event, err := personevent.DecodeEvent(envelope)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding event at sequence %d: %w", ErrCorruptHistory, sequence, err)
		}

		out = append(out, StoredEvent{Sequence: sequence, Envelope: envelope, Event: event})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return out, nil
}

// MarkProcessed implements Store. It records messageID in
// processed_messages, a short-lived table distinct from the permanent
// person_events log, used only to detect commands redelivered by the
// broker within the dedup window.
func (s *PostgresEventStore) MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	const insertQuery = `
		INSERT INTO processed_messages (message_id, recorded_at)
		VALUES ($1, NOW())
		ON CONFLICT (message_id) DO NOTHING
	`

	result, err := s.conn.ExecContext(ctx, insertQuery, messageID)
	if err != nil {
		return false, fmt.Errorf("%w: recording processed message: %w", ErrEventStoreFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return affected == 0, nil
}

// HealthCheck implements Store.
func (s *PostgresEventStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// Close stops the cleanup goroutine. Safe to call more than once. Does
// not close the underlying connection, which is owned by the caller.
func (s *PostgresEventStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.cleanupStop)

		select {
		case <-s.cleanupDone:
			s.logger.Info("event store cleanup goroutine stopped gracefully")
		case <-time.After(shutdownTimeout):
			s.logger.Warn("event store cleanup goroutine did not stop within timeout")
		}
	})

	return nil
}

// runCleanup periodically deletes processed_messages rows that have
// aged out of the deduplication window.
func (s *PostgresEventStore) runCleanup() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-s.cleanupStop:
			cancel()
			s.logger.Info("stopping event store cleanup goroutine")

			return
		case <-ticker.C:
			cleanupCtx, cleanupCancel := context.WithTimeout(ctx, cleanupQueryTimeout)
			s.cleanupExpiredDedupEntries(cleanupCtx)
			cleanupCancel()
		}
	}
}

// cleanupExpiredDedupEntries deletes processed_messages rows older
// than dedupWindow, in batches, to avoid holding a long-running lock.
func (s *PostgresEventStore) cleanupExpiredDedupEntries(ctx context.Context) {
	if s.conn == nil {
		s.logger.Error("cleanup skipped: database connection is nil")

		return
	}

	const deleteQuery = `
		DELETE FROM processed_messages
		WHERE ctid IN (
			SELECT ctid FROM processed_messages
			WHERE recorded_at < NOW() - INTERVAL '1 millisecond' * $1
			ORDER BY recorded_at ASC
			LIMIT $2
		)
	`

	total := int64(0)

	for {
		select {
		case <-ctx.Done():
			s.logger.Warn("dedup cleanup interrupted by context", slog.Int64("rows_deleted", total))

			return
		default:
		}

		result, err := s.conn.ExecContext(ctx, deleteQuery, dedupWindow.Milliseconds(), cleanupBatchSize)
		if err != nil {
			s.logger.Error("dedup cleanup batch failed", slog.String("error", err.Error()), slog.Int64("rows_deleted", total))

			return
		}

		affected, err := result.RowsAffected()
		if err != nil {
			s.logger.Warn("dedup cleanup succeeded but row count unavailable", slog.Int64("rows_deleted", total))

			return
		}

		total += affected

		if affected < cleanupBatchSize {
			break
		}

		time.Sleep(batchSleepDuration)
	}

	if total > 0 {
		s.logger.Info("dedup cleanup completed", slog.Int64("rows_deleted", total))
	}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
