// Package reflock serializes mutations per event reference so a concurrent
// price check and reconciler closure for the same reference cannot interleave.
// Lock scope is one reference; no global lock is ever held across a tick.
package reflock

import "sync"

// Set is a collection of per-reference mutexes, created on first use.
type Set struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty lock set.
func New() *Set {
	return &Set{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive section for one reference, blocking until any
// other holder releases it. The returned function releases the section and
// must be called exactly once, normally via defer.
func (s *Set) Lock(reference string) (unlock func()) {
	s.mu.Lock()
	e, ok := s.locks[reference]
	if !ok {
		e = &entry{}
		s.locks[reference] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, reference)
		}
		s.mu.Unlock()
	}
}
