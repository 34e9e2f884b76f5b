// Package vectorize drives the embedding pipeline: it pages source text out
// of a project store, calls the embedding client in batches, writes vectors
// back, and reports progress with cooperative cancellation.
package vectorize

import "sync"

// CancellationSet tracks source identifiers requested for cancellation.
// Requests are polled by the orchestrator once per batch boundary, never
// preemptively, so an in-flight embedding call always completes before a
// cancellation takes effect. Requesting cancellation for a source with no
// running job is harmless; the flag is cleared when the next job starts.
type CancellationSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewCancellationSet returns an empty set.
func NewCancellationSet() *CancellationSet {
	return &CancellationSet{ids: make(map[string]struct{})}
}

// Request marks a source for cancellation. Idempotent.
func (s *CancellationSet) Request(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[sourceID] = struct{}{}
}

// Consume reports whether cancellation was requested for sourceID and clears
// the flag if so.
func (s *CancellationSet) Consume(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[sourceID]; !ok {
		return false
	}
	delete(s.ids, sourceID)
	return true
}

// Clear drops any pending request for sourceID.
func (s *CancellationSet) Clear(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, sourceID)
}
