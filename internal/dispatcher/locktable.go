package dispatcher

import (
	"context"
	"sync"
)

// lockTable is the per-aggregate-id exclusive slot described by §4.7
// step 2: commands targeting distinct aggregates run in parallel,
// commands targeting the same aggregate are serialized. Unlike the
// rate limiter's idle-timeout eviction, entries here are removed the
// instant no task holds or awaits them, since aggregate ids are
// effectively unbounded and must never accumulate.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	token    chan struct{}
	refCount int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until key's exclusive slot is free or ctx is done. The
// returned release function must be called exactly once to free the
// slot; it is safe to call from any goroutine.
func (t *lockTable) Acquire(ctx context.Context, key string) (release func(), err error) {
	t.mu.Lock()

	entry, ok := t.entries[key]
	if !ok {
		entry = &lockEntry{token: make(chan struct{}, 1)}
		entry.token <- struct{}{}
		t.entries[key] = entry
	}

	entry.refCount++

	t.mu.Unlock()

	select {
	case <-entry.token:
		var once sync.Once

		return func() {
			once.Do(func() {
				entry.token <- struct{}{}
				t.release(key, entry)
			})
		}, nil
	case <-ctx.Done():
		t.release(key, entry)

		return nil, ctx.Err()
	}
}

func (t *lockTable) release(key string, entry *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.refCount--
	if entry.refCount == 0 {
		delete(t.entries, key)
	}
}

// Len reports how many aggregate ids currently have a live entry
// (held or awaited). Exposed for tests that assert the table does not
// leak.
func (t *lockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
