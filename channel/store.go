package channel

import (
	"fmt"
	"sync"
)

// Store is the process-scoped registry of live descriptors. It is injected
// into the engine rather than held as a package global so tests can run
// isolated instances side by side.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Descriptor
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*Descriptor)}
}

// Add registers a descriptor. A channel id may only ever map to one
// descriptor while it lives; a duplicate is a bug upstream.
func (s *Store) Add(d *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[d.ID]; exists {
		return fmt.Errorf("descriptor for channel %s already exists", d.ID)
	}
	s.byID[d.ID] = d
	return nil
}

// Get returns the descriptor for id, or nil.
func (s *Store) Get(id string) *Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Remove drops the descriptor for id. Safe to call when absent.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Snapshot returns the current descriptors. The slice is a copy; the
// descriptors themselves are shared and need their own locks.
func (s *Store) Snapshot() []*Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Descriptor, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d)
	}
	return out
}

// Len returns the number of tracked descriptors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// OwnedBy returns the descriptors owned by userID that are not pending deletion.
func (s *Store) OwnedBy(userID string) []*Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Descriptor
	for _, d := range s.byID {
		d.Lock()
		if d.OwnerID == userID && d.State == Active {
			out = append(out, d)
		}
		d.Unlock()
	}
	return out
}
