package syncwatch

import "sync"

// InFlight is the set of RSVP ids currently being materialized by this
// process. It does not coordinate with other processes.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInFlight returns an empty set
func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

// TryAcquire adds key and reports true, or reports false when key is already held.
func (s *InFlight) TryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.keys[key]; held {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Release removes key
func (s *InFlight) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Len reports how many keys are held
func (s *InFlight) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
