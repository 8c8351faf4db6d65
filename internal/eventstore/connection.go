package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

const (
	postgresDriver  = "postgres"
	pingTimeout     = 5 * time.Second
	defaultMaxOpen  = 25
	defaultMaxIdle  = 5
	defaultConnTTL  = 30 * time.Minute
	defaultIdleTTL  = 10 * time.Minute
)

// ConnectionConfig configures the pooled Postgres connection backing
// the event log and snapshot store.
type ConnectionConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewConnectionConfig returns a ConnectionConfig with production-ready
// pool defaults for the given database URL.
func NewConnectionConfig(databaseURL string) ConnectionConfig {
	return ConnectionConfig{
		DatabaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpen,
		MaxIdleConns:    defaultMaxIdle,
		ConnMaxLifetime: defaultConnTTL,
		ConnMaxIdleTime: defaultIdleTTL,
	}
}

// Connection wraps a pooled *sql.DB for the Postgres-backed event log
// and snapshot store.
type Connection struct {
	*sql.DB
}

// NewConnection opens a pooled connection to Postgres and verifies it
// is reachable before returning.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.DatabaseURL == "" {
		return nil, ErrNoDatabaseConnection
	}

	db, err := sql.Open(postgresDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("eventstore: opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("eventstore: database health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck reports whether the connection can currently serve
// queries.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), pingTimeout)

		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the underlying connection pool. Safe to call more than
// once.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats returns the connection pool's current statistics.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}
