package snapshot

import "sync/atomic"

// corruptionFallbacks counts how many times Get has fallen back to
// ErrNotFound because a stored snapshot failed to decode, so an
// operator can tell a quiet full-replay degradation from a healthy
// cold cache via the liveness endpoint.
var corruptionFallbacks atomic.Int64

// RecordCorruptionFallback increments the corruption counter. Called
// by Store implementations when a stored snapshot is unreadable.
func RecordCorruptionFallback() {
	corruptionFallbacks.Add(1)
}

// CorruptionFallbacks reports the number of corruption fallbacks
// observed since process start.
func CorruptionFallbacks() int64 {
	return corruptionFallbacks.Load()
}
