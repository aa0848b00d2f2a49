package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/hash/sha256"
	"github.com/JakeFAU/archive-harvester/internal/storage/local"
	"github.com/JakeFAU/archive-harvester/internal/storage/memory"
)

func TestBodiesMissThenHit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bodies, err := NewBodies(memory.NewBlobStore(), sha256.New(), zap.NewNop())
	require.NoError(t, err)
	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}

	_, ok, err := bodies.Get(ctx, coord, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bodies.Put(ctx, coord, "m1", "raw body"))
	body, ok, err := bodies.Get(ctx, coord, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "raw body", body)
}

func TestBodiesAreImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	store := memory.NewBlobStore()
	bodies, err := NewBodies(store, sha256.New(), zap.New(core))
	require.NoError(t, err)
	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}

	require.NoError(t, bodies.Put(ctx, coord, "m1", "first"))
	require.NoError(t, bodies.Put(ctx, coord, "m1", "first"))
	require.NoError(t, bodies.Put(ctx, coord, "m1", "second"))

	body, _, err := bodies.Get(ctx, coord, "m1")
	require.NoError(t, err)
	assert.Equal(t, "first", body)
	assert.Equal(t, 1, store.Puts())
	assert.Equal(t, 1, logs.FilterMessage("archived body changed upstream; keeping stored copy").Len())
}

func TestBodiesUseHierarchicalPaths(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	blobs, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	bodies, err := NewBodies(blobs, nil, nil)
	require.NoError(t, err)
	coord := archive.Coordinate{Collection: "group", Thread: "topic", Page: 7}

	require.NoError(t, bodies.Put(ctx, coord, "abc", "payload"))
	rc, err := blobs.GetObject(ctx, "group/topic/7/abc")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestBodiesRejectInvalidKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bodies, err := NewBodies(memory.NewBlobStore(), nil, nil)
	require.NoError(t, err)

	assert.Error(t, bodies.Put(ctx, archive.Coordinate{Collection: "g", Thread: "t", Page: 1}, "", "x"))
	assert.Error(t, bodies.Put(ctx, archive.Coordinate{Collection: "g", Thread: "t", Page: 1}, "../x", "x"))
	assert.Error(t, bodies.Put(ctx, archive.Coordinate{Collection: "g", Thread: "t"}, "m", "x"))
	assert.Error(t, bodies.Put(ctx, archive.Coordinate{Collection: "..", Thread: "t", Page: 1}, "m", "x"))

	coord := archive.Coordinate{Collection: "g", Thread: "t", Page: 1}
	for _, id := range []archive.MessageID{".", "..", "a/b", " "} {
		assert.Error(t, bodies.Put(ctx, coord, id, "x"), "put %q", id)
		_, ok, getErr := bodies.Get(ctx, coord, id)
		assert.Error(t, getErr, "get %q", id)
		assert.False(t, ok)
	}

	_, err = NewBodies(nil, nil, nil)
	assert.Error(t, err)
}
