package engine

import (
	"sync"
	"time"
)

// Sessions tracks one Machine per position so repeated target edits from the
// same client share a debounce window instead of spawning parallel plans.
// Machines are created on first use and live until Stop.
type Sessions struct {
	planner  *Planner
	debounce time.Duration

	mu    sync.Mutex
	byKey map[string]*Machine
}

// NewSessions creates an empty session registry. debounce <= 0 selects
// DefaultDebounce for every machine.
func NewSessions(planner *Planner, debounce time.Duration) *Sessions {
	return &Sessions{
		planner:  planner,
		debounce: debounce,
		byKey:    make(map[string]*Machine),
	}
}

func sessionKey(address, accountID string) string {
	return address + "/" + accountID
}

// Get returns the machine for the position, creating it on first use.
func (s *Sessions) Get(address, accountID string) *Machine {
	key := sessionKey(address, accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byKey[key]
	if !ok {
		m = NewMachine(s.planner, s.debounce)
		s.byKey[key] = m
		log.Debug().Str("session", key).Msg("Session created")
	}
	return m
}

// Lookup returns the machine for the position without creating one.
func (s *Sessions) Lookup(address, accountID string) (*Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byKey[sessionKey(address, accountID)]
	return m, ok
}

// Stop halts every machine's pending work and clears the registry.
func (s *Sessions) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byKey {
		m.Stop()
	}
	s.byKey = make(map[string]*Machine)
}
