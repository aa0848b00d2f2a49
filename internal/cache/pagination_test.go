package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/storage/local"
	"github.com/JakeFAU/archive-harvester/internal/storage/memory"
)

func fullPage(prefix string) archive.PageIndex {
	index := make(archive.PageIndex, archive.PageSize)
	for i := range index {
		index[i] = archive.MessageID(fmt.Sprintf("%s-%02d", prefix, i))
	}
	return index
}

func TestPaginationMissWhenEmpty(t *testing.T) {
	t.Parallel()

	p, err := NewPagination(context.Background(), memory.NewIndexStore(nil))
	require.NoError(t, err)

	_, ok := p.Get(archive.Coordinate{Collection: "g", Thread: "t", Page: 1})
	assert.False(t, ok)
}

func TestPaginationPartialPageIsMiss(t *testing.T) {
	t.Parallel()

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 2}
	seed := map[archive.Coordinate]archive.PageIndex{coord: fullPage("m")[:24]}
	p, err := NewPagination(context.Background(), memory.NewIndexStore(seed))
	require.NoError(t, err)

	_, ok := p.Get(coord)
	assert.False(t, ok, "a page with fewer than 25 ids must not be trusted")

	stored, ok := p.Lookup(coord)
	require.True(t, ok)
	assert.Len(t, stored, 24)
}

func TestPaginationCompletePageIsHit(t *testing.T) {
	t.Parallel()

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	store := memory.NewIndexStore(nil)
	p, err := NewPagination(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, p.Put(context.Background(), coord, fullPage("m")))
	got, ok := p.Get(coord)
	require.True(t, ok)
	assert.Equal(t, fullPage("m"), got)
	assert.Equal(t, 1, store.Saves())

	got[0] = "mutated"
	again, _ := p.Get(coord)
	assert.Equal(t, archive.MessageID("m-00"), again[0])
}

func TestPaginationPutOverwrites(t *testing.T) {
	t.Parallel()

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 3}
	p, err := NewPagination(context.Background(), memory.NewIndexStore(nil))
	require.NoError(t, err)

	require.NoError(t, p.Put(context.Background(), coord, archive.PageIndex{"a"}))
	require.NoError(t, p.Put(context.Background(), coord, fullPage("b")))
	got, ok := p.Get(coord)
	require.True(t, ok)
	assert.Equal(t, archive.MessageID("b-00"), got[0])
	assert.Equal(t, 1, p.Len())
}

func TestPaginationFailedSaveLeavesPreviousEntry(t *testing.T) {
	t.Parallel()

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	store := memory.NewIndexStore(map[archive.Coordinate]archive.PageIndex{coord: fullPage("old")})
	p, err := NewPagination(context.Background(), store)
	require.NoError(t, err)

	store.SaveErr = errors.New("disk full")
	err = p.Put(context.Background(), coord, archive.PageIndex{"new"})
	require.Error(t, err)

	got, ok := p.Get(coord)
	require.True(t, ok)
	assert.Equal(t, archive.MessageID("old-00"), got[0])
}

func TestPaginationSurvivesRestartWithFileStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")
	complete := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	partial := archive.Coordinate{Collection: "g", Thread: "t", Page: 2}

	store, err := local.NewIndexStore(path)
	require.NoError(t, err)
	p, err := NewPagination(ctx, store)
	require.NoError(t, err)
	require.NoError(t, p.Put(ctx, complete, fullPage("a")))
	require.NoError(t, p.Put(ctx, partial, archive.PageIndex{"x", "y"}))

	reopenedStore, err := local.NewIndexStore(path)
	require.NoError(t, err)
	reopened, err := NewPagination(ctx, reopenedStore)
	require.NoError(t, err)

	_, ok := reopened.Get(complete)
	assert.True(t, ok)
	_, ok = reopened.Get(partial)
	assert.False(t, ok)
	assert.Equal(t, 2, reopened.Len())
}

func TestNewPaginationRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewPagination(context.Background(), nil)
	assert.Error(t, err)
}

func TestPaginationReloadPicksUpExternalWrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewIndexStore(nil)
	p, err := NewPagination(ctx, store)
	require.NoError(t, err)

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	require.NoError(t, store.Save(ctx, coord, fullPage("ext")))
	_, ok := p.Lookup(coord)
	require.False(t, ok)

	require.NoError(t, p.Reload(ctx))
	index, ok := p.Get(coord)
	require.True(t, ok)
	assert.Equal(t, fullPage("ext"), index)
}

func TestPaginationReloadFailureKeepsEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	store := &flakyIndexStore{IndexStore: memory.NewIndexStore(map[archive.Coordinate]archive.PageIndex{
		coord: fullPage("m"),
	})}
	p, err := NewPagination(ctx, store)
	require.NoError(t, err)

	store.loadErr = errors.New("disk gone")
	require.ErrorContains(t, p.Reload(ctx), "disk gone")
	_, ok := p.Get(coord)
	assert.True(t, ok)
}

type flakyIndexStore struct {
	*memory.IndexStore
	loadErr error
}

func (s *flakyIndexStore) LoadAll(ctx context.Context) (map[archive.Coordinate]archive.PageIndex, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.IndexStore.LoadAll(ctx)
}
