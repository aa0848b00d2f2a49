package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// IndexStore keeps page indexes in a map. SaveErr, when set, is returned by
// every Save to simulate a failing backend.
type IndexStore struct {
	mu      sync.RWMutex
	pages   map[archive.Coordinate]archive.PageIndex
	saves   int
	SaveErr error
}

// NewIndexStore returns an IndexStore seeded with the given pages.
func NewIndexStore(seed map[archive.Coordinate]archive.PageIndex) *IndexStore {
	pages := make(map[archive.Coordinate]archive.PageIndex, len(seed))
	for coord, index := range seed {
		pages[coord] = index.Clone()
	}
	return &IndexStore{pages: pages}
}

// LoadAll returns a copy of every stored page.
func (s *IndexStore) LoadAll(_ context.Context) (map[archive.Coordinate]archive.PageIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[archive.Coordinate]archive.PageIndex, len(s.pages))
	for coord, index := range s.pages {
		out[coord] = index.Clone()
	}
	return out, nil
}

// Save stores a copy of index.
func (s *IndexStore) Save(_ context.Context, coord archive.Coordinate, index archive.PageIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.pages[coord] = index.Clone()
	s.saves++
	return nil
}

// Saves returns how many successful Save calls were made.
func (s *IndexStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
