package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/cache"
	"github.com/JakeFAU/archive-harvester/internal/coordinator"
	"github.com/JakeFAU/archive-harvester/internal/hash/sha256"
	"github.com/JakeFAU/archive-harvester/internal/message"
	"github.com/JakeFAU/archive-harvester/internal/publish"
	pubmemory "github.com/JakeFAU/archive-harvester/internal/publisher/memory"
	"github.com/JakeFAU/archive-harvester/internal/resource"
	"github.com/JakeFAU/archive-harvester/internal/storage/memory"
)

type fakeArchive struct {
	pages    map[int]archive.PageIndex
	bodies   map[archive.MessageID]string
	failList map[int]bool
}

func (f *fakeArchive) ListMessages(_ context.Context, coord archive.Coordinate) (archive.PageIndex, error) {
	if f.failList[coord.Page] {
		return nil, errors.New("listing unavailable")
	}
	return f.pages[coord.Page], nil
}

func (f *fakeArchive) FetchBody(_ context.Context, _ archive.Coordinate, id archive.MessageID) (string, error) {
	body, ok := f.bodies[id]
	if !ok {
		return "", errors.New("no such message")
	}
	return body, nil
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

func plainBody(text string) string {
	return "From: a@example.com\r\nContent-Type: text/plain\r\n\r\n" + text
}

func newRunner(t *testing.T, fetcher archive.PageFetcher, sink archive.PublishSink) *Runner {
	t.Helper()
	ctx := context.Background()
	pages, err := cache.NewPagination(ctx, memory.NewIndexStore(nil))
	require.NoError(t, err)
	bodies, err := cache.NewBodies(memory.NewBlobStore(), sha256.New(), nil)
	require.NoError(t, err)
	coord := coordinator.New(pages, bodies, fetcher, nil, coordinator.Config{}, nil)

	cfg := resource.DefaultConfig()
	cfg.ShortHosts = []string{"short.host"}
	extractor, err := resource.New(cfg)
	require.NoError(t, err)

	return New(coord, message.New(message.Config{}), extractor, publish.New(nil), sink, fixedIDs{}, zap.NewNop())
}

func TestRunPublishesResolvedIds(t *testing.T) {
	t.Parallel()

	fetcher := &fakeArchive{
		pages: map[int]archive.PageIndex{
			1: {"m1", "m2", "m3", "m4"},
			2: {"m5"},
		},
		bodies: map[archive.MessageID]string{
			"m1": plainBody("watch http://host/watch?v=abc123&x=1\n> http://host/watch?v=quoted\n"),
			"m2": plainBody("short http://short.host/xyz789 and http://host/nopattern\n"),
			"m3": "Content-Type: text/html\r\n\r\n<p>html only</p>\r\n",
			// m4 is missing and fails to fetch.
			"m5": plainBody("nothing to see\n"),
		},
	}
	sink := pubmemory.New()
	sink.FailOn("xyz789", errors.New("quota"))

	result, err := newRunner(t, fetcher, sink).Run(context.Background(), Plan{
		Collection: "g", Thread: "t", FirstPage: 1, LastPage: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, Counters{
		PagesSucceeded:  2,
		Messages:        5,
		BodyFailures:    1,
		NoText:          1,
		URLs:            3,
		Unresolved:      1,
		Published:       1,
		PublishFailures: 1,
	}, result.Counters)
	assert.Equal(t, []string{"abc123"}, sink.Added())
}

func TestRunContinuesPastFailedPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeArchive{
		pages:    map[int]archive.PageIndex{2: {"m1"}},
		bodies:   map[archive.MessageID]string{"m1": plainBody("http://host/watch?v=ok\n")},
		failList: map[int]bool{1: true},
	}
	sink := pubmemory.New()

	result, err := newRunner(t, fetcher, sink).Run(context.Background(), Plan{
		Collection: "g", Thread: "t", FirstPage: 1, LastPage: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, 1, result.Counters.PagesFailed)
	assert.Equal(t, 1, result.Counters.PagesSucceeded)
	assert.Contains(t, result.Error, "listing unavailable")
	assert.Equal(t, []string{"ok"}, sink.Added())
}

func TestRunFailsWhenNoPageSucceeds(t *testing.T) {
	t.Parallel()

	fetcher := &fakeArchive{failList: map[int]bool{1: true}}
	result, err := newRunner(t, fetcher, pubmemory.New()).Run(context.Background(), Plan{
		Collection: "g", Thread: "t", FirstPage: 1, LastPage: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.Counters.PagesFailed)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := newRunner(t, &fakeArchive{}, pubmemory.New()).Run(ctx, Plan{
		Collection: "g", Thread: "t", FirstPage: 1, LastPage: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, result.Status)
	assert.Zero(t, result.Counters.PagesSucceeded+result.Counters.PagesFailed)
}

func TestPlanValidateAndCoordinates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		plan    Plan
		wantErr bool
	}{
		{plan: Plan{Collection: "g", Thread: "t", FirstPage: 1, LastPage: 32}},
		{plan: Plan{Collection: "g", Thread: "t", FirstPage: 0, LastPage: 1}, wantErr: true},
		{plan: Plan{Collection: "g", Thread: "t", FirstPage: 3, LastPage: 2}, wantErr: true},
		{plan: Plan{Collection: "", Thread: "t", FirstPage: 1, LastPage: 1}, wantErr: true},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()
			err := tc.plan.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}

	coords := Plan{Collection: "g", Thread: "t", FirstPage: 2, LastPage: 4}.Coordinates()
	require.Len(t, coords, 3)
	assert.Equal(t, archive.Coordinate{Collection: "g", Thread: "t", Page: 4}, coords[2])
}
