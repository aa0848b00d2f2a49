// Package memory contains an in-memory PublishSink for tests and dry runs.
package memory

import (
	"context"
	"sync"
)

// Sink records every accepted resource id for inspection.
type Sink struct {
	mu    sync.RWMutex
	added []string
	fail  map[string]error
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{fail: make(map[string]error)}
}

// FailOn makes Add return err for id.
func (s *Sink) FailOn(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[id] = err
}

// Add records id unless a failure was registered for it.
func (s *Sink) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[id]; err != nil {
		return err
	}
	s.added = append(s.added, id)
	return nil
}

// Added returns the accepted ids in order.
func (s *Sink) Added() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.added))
	copy(out, s.added)
	return out
}
