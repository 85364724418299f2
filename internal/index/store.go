package index

import "sync/atomic"

// Store publishes built indexes to concurrent readers. A build in progress is
// invisible until Publish swaps the pointer; after that the index is
// read-only shared state, so retrievals need no locking.
type Store struct {
	current atomic.Pointer[VectorIndex]
}

func NewStore() *Store {
	return &Store{}
}

// Publish atomically replaces the served index.
func (s *Store) Publish(idx *VectorIndex) {
	s.current.Store(idx)
}

// Current returns the published index, or nil when none has been published.
func (s *Store) Current() *VectorIndex {
	return s.current.Load()
}
