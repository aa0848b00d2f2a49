package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestSinkPublishesRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, client := newTestClient(t)
	_, err := client.CreateTopic(ctx, "playlist-adds")
	require.NoError(t, err)

	topic, err := OpenTopic(ctx, client, "playlist-adds")
	require.NoError(t, err)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink, err := New(topic, Config{PlaylistID: "PL1", RunID: "run-1"}, fixedClock{t: at})
	require.NoError(t, err)
	t.Cleanup(sink.Close)

	require.NoError(t, sink.Add(ctx, "abc123"))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc123", msgs[0].Attributes["resource_id"])

	var req Request
	require.NoError(t, json.Unmarshal(msgs[0].Data, &req))
	assert.Equal(t, Request{ResourceID: "abc123", PlaylistID: "PL1", RunID: "run-1", RequestedAt: at}, req)
}

func TestOpenTopicMissing(t *testing.T) {
	t.Parallel()

	_, client := newTestClient(t)
	_, err := OpenTopic(context.Background(), client, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{PlaylistID: "PL"}, nil)
	require.Error(t, err)
}
