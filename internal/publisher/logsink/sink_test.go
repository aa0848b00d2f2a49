package logsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSinkLogsIds(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := New(zap.New(core), "PL1")

	require.NoError(t, sink.Add(context.Background(), "abc"))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].ContextMap()["resource_id"])
	assert.Equal(t, "PL1", entries[0].ContextMap()["playlist_id"])
}
