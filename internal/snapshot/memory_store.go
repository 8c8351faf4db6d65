package snapshot

import (
	"context"
	"sync"

	"github.com/persondomain/persond/internal/person"
)

// InMemoryStore is a thread-safe, process-local snapshot cache. It is
// lost on restart, which is fine: the repository falls back to full
// replay whenever a snapshot is missing or stale.
type InMemoryStore struct {
	mutex     sync.RWMutex
	snapshots map[string]Snapshot
}

// NewInMemoryStore creates an empty in-memory snapshot cache.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]Snapshot),
	}
}

var _ Store = (*InMemoryStore)(nil)

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, personID person.ID) (Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap, ok := s.snapshots[personID.String()]
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	return snap, nil
}

// Put implements Store.
func (s *InMemoryStore) Put(_ context.Context, personID person.ID, snap Snapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshots[personID.String()] = snap

	return nil
}

// Invalidate implements Store.
func (s *InMemoryStore) Invalidate(_ context.Context, personID person.ID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.snapshots, personID.String())

	return nil
}
