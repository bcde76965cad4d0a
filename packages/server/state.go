package server

import "sync"

// PullState is the single "pull in progress" flag. At most one pull runs at
// a time; a second start is refused, never queued.
type PullState struct {
	mu      sync.Mutex
	running bool
}

// TryStart sets the flag and reports true, or reports false if a pull is
// already running.
func (s *PullState) TryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *PullState) Finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *PullState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
