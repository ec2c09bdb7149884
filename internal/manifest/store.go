package manifest

import "sync/atomic"

// Store publishes the current descriptor set to concurrent readers.
// Readers never lock; a reload swaps in a complete new set and
// in-flight work that already captured the old set keeps using it.
type Store struct {
	current atomic.Pointer[Set]
}

// NewStore creates a store holding the given initial set. A nil set is
// valid and behaves as an empty one.
func NewStore(initial *Set) *Store {
	s := &Store{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Current returns the currently published set. The returned set is
// immutable and remains valid after subsequent swaps.
func (s *Store) Current() *Set {
	return s.current.Load()
}

// Swap atomically publishes a new set and returns the previous one.
func (s *Store) Swap(next *Set) *Set {
	return s.current.Swap(next)
}

// Get returns the descriptor for the given id from the current set.
func (s *Store) Get(id string) (*Descriptor, bool) {
	return s.Current().Get(id)
}
