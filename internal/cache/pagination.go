package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// Pagination caches page indexes in memory on top of a durable IndexStore.
type Pagination struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	store   archive.IndexStore
	pages   map[archive.Coordinate]archive.PageIndex
}

// NewPagination loads every stored page from store.
func NewPagination(ctx context.Context, store archive.IndexStore) (*Pagination, error) {
	if store == nil {
		return nil, fmt.Errorf("index store is required")
	}
	pages, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pagination index: %w", err)
	}
	if pages == nil {
		pages = map[archive.Coordinate]archive.PageIndex{}
	}
	return &Pagination{store: store, pages: pages}, nil
}

// Get returns the page index for coord only when it is complete. A stored
// partial page is reported as a miss so the caller fetches it again.
func (p *Pagination) Get(coord archive.Coordinate) (archive.PageIndex, bool) {
	index, ok := p.Lookup(coord)
	if !ok || !index.Complete() {
		metrics.ObserveCacheLookup(metrics.TierIndex, metrics.ResultMiss)
		return nil, false
	}
	metrics.ObserveCacheLookup(metrics.TierIndex, metrics.ResultHit)
	return index, true
}

// Lookup returns whatever is stored for coord, complete or not.
func (p *Pagination) Lookup(coord archive.Coordinate) (archive.PageIndex, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	index, ok := p.pages[coord]
	if !ok {
		return nil, false
	}
	return index.Clone(), true
}

// Put replaces the entry for coord. The durable store is written first; the
// in-memory entry changes only after the write succeeds.
func (p *Pagination) Put(ctx context.Context, coord archive.Coordinate, index archive.PageIndex) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	stored := index.Clone()
	if stored == nil {
		stored = archive.PageIndex{}
	}
	if err := p.store.Save(ctx, coord, stored); err != nil {
		return fmt.Errorf("persist page index %s: %w", coord, err)
	}

	p.mu.Lock()
	p.pages[coord] = stored
	p.mu.Unlock()
	return nil
}

// Reload replaces the in-memory entries with whatever the durable store now
// holds, picking up pages written by other processes. On error the current
// entries are kept.
func (p *Pagination) Reload(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	pages, err := p.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reload pagination index: %w", err)
	}
	if pages == nil {
		pages = map[archive.Coordinate]archive.PageIndex{}
	}
	p.mu.Lock()
	p.pages = pages
	p.mu.Unlock()
	return nil
}

// Len returns the number of stored pages, complete or not.
func (p *Pagination) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}
