// Package snapshot implements the best-effort, non-authoritative cache
// of aggregate state the repository (C6) uses to shorten replay.
// Snapshots are advisory: the repository replays every logged event
// after a snapshot's version on top of it, but does not compare that
// version against the head of the event log.
package snapshot

import (
	"context"
	"errors"

	"github.com/persondomain/persond/internal/person"
)

// ErrNotFound is returned by Get when no snapshot exists for the
// aggregate.
var ErrNotFound = errors.New("snapshot: not found")

// Snapshot is a cached aggregate state at a known version, plus the
// event log sequence it was taken at. Rehydration resumes replay from
// aggregate version Version+1.
type Snapshot struct {
	Version      uint64
	FromSequence int64
	State        *person.Person
}

// Store is the snapshot cache contract. Implementations may lose data
// at any time without violating correctness, since the event log
// remains authoritative.
type Store interface {
	// Get returns the most recent snapshot for personID, or
	// ErrNotFound if none exists or it could not be read reliably.
	Get(ctx context.Context, personID person.ID) (Snapshot, error)

	// Put stores snap as the latest snapshot for personID, replacing
	// any prior one.
	Put(ctx context.Context, personID person.ID, snap Snapshot) error

	// Invalidate discards any snapshot held for personID.
	Invalidate(ctx context.Context, personID person.ID) error
}

// ShouldSnapshot reports whether version should trigger a new
// snapshot, given the configured frequency (spec default: every 100
// applied events).
func ShouldSnapshot(version uint64, frequency int) bool {
	if frequency < 1 {
		return false
	}

	return version%uint64(frequency) == 0
}
