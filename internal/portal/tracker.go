package portal

import "sync"

// requestTracker hands out monotonically increasing tokens per resource so
// overlapping refreshes can detect that a newer request has superseded
// them. Only the response carrying the latest token for its resource is
// allowed to land.
type requestTracker struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func newRequestTracker() *requestTracker {
	return &requestTracker{latest: map[string]uint64{}}
}

// Begin registers a new in-flight request and returns its token
func (t *requestTracker) Begin(resource string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[resource]++
	return t.latest[resource]
}

// Accept reports whether a completed request still holds the latest token
// for its resource. A superseded response must be discarded, never merged.
func (t *requestTracker) Accept(resource string, token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[resource] == token
}
