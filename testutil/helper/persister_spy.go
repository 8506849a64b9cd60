package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
)

// PersisterSpy is a circulation.Persister that captures snapshots and can be told to fail.
type PersisterSpy struct {
	snapshots []circulation.InventorySnapshot
	failWith  error
	mu        sync.Mutex
}

// NewPersisterSpy creates a PersisterSpy. A non-nil failWith is returned from every Persist call.
func NewPersisterSpy(failWith error) *PersisterSpy {
	return &PersisterSpy{
		snapshots: make([]circulation.InventorySnapshot, 0),
		failWith:  failWith,
	}
}

// Persist implements circulation.Persister.
func (s *PersisterSpy) Persist(_ context.Context, snapshot circulation.InventorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snapshot)

	return s.failWith
}

// CallCount returns how often Persist was called.
func (s *PersisterSpy) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.snapshots)
}

// LastSnapshot returns the most recent snapshot and whether there was one.
func (s *PersisterSpy) LastSnapshot() (circulation.InventorySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return circulation.InventorySnapshot{}, false
	}

	return s.snapshots[len(s.snapshots)-1], true
}

var _ circulation.Persister = (*PersisterSpy)(nil)
