package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// indexDocument is the on-disk shape: collection -> thread -> page -> ids.
type indexDocument map[string]map[string]map[string][]string

// IndexStore keeps the pagination index in a single JSON file. Every Save
// rewrites the whole document atomically.
type IndexStore struct {
	mu   sync.Mutex
	path string
	doc  indexDocument
}

// NewIndexStore returns a store backed by the JSON file at path. The file is
// created on the first Save.
func NewIndexStore(path string) (*IndexStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("index file path is required")
	}
	return &IndexStore{path: path, doc: indexDocument{}}, nil
}

// Path returns the index file location.
func (s *IndexStore) Path() string {
	return s.path
}

// LoadAll reads the index file. A missing file is an empty index.
func (s *IndexStore) LoadAll(_ context.Context) (map[archive.Coordinate]archive.PageIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- the index path comes from operator configuration.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.doc = indexDocument{}
			return map[archive.Coordinate]archive.PageIndex{}, nil
		}
		return nil, fmt.Errorf("read index %s: %w", s.path, err)
	}
	doc := indexDocument{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode index %s: %w", s.path, err)
		}
	}

	out := make(map[archive.Coordinate]archive.PageIndex)
	for collection, threads := range doc {
		for thread, pages := range threads {
			for pageKey, ids := range pages {
				page, err := strconv.Atoi(pageKey)
				if err != nil {
					return nil, fmt.Errorf("decode index %s: invalid page key %q", s.path, pageKey)
				}
				coord := archive.Coordinate{Collection: collection, Thread: thread, Page: page}
				out[coord] = toPageIndex(ids)
			}
		}
	}
	s.doc = doc
	return out, nil
}

// Save records index for coord and rewrites the file before returning.
func (s *IndexStore) Save(ctx context.Context, coord archive.Coordinate, index archive.PageIndex) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	threads, ok := next[coord.Collection]
	if !ok {
		threads = map[string]map[string][]string{}
		next[coord.Collection] = threads
	}
	pages, ok := threads[coord.Thread]
	if !ok {
		pages = map[string][]string{}
		threads[coord.Thread] = pages
	}
	pages[coord.PageKey()] = fromPageIndex(index)

	payload, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeFileAtomic(filepath.Clean(s.path), append(payload, '\n')); err != nil {
		return fmt.Errorf("write index %s: %w", s.path, err)
	}
	s.doc = next
	return nil
}

func (d indexDocument) clone() indexDocument {
	out := make(indexDocument, len(d))
	for collection, threads := range d {
		threadsCopy := make(map[string]map[string][]string, len(threads))
		for thread, pages := range threads {
			pagesCopy := make(map[string][]string, len(pages))
			for page, ids := range pages {
				pagesCopy[page] = append([]string(nil), ids...)
			}
			threadsCopy[thread] = pagesCopy
		}
		out[collection] = threadsCopy
	}
	return out
}

func toPageIndex(ids []string) archive.PageIndex {
	out := make(archive.PageIndex, len(ids))
	for i, id := range ids {
		out[i] = archive.MessageID(id)
	}
	return out
}

func fromPageIndex(index archive.PageIndex) []string {
	out := make([]string, len(index))
	for i, id := range index {
		out[i] = string(id)
	}
	return out
}
