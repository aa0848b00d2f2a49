package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/app"
	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/config"
	pubmemory "github.com/JakeFAU/archive-harvester/internal/publisher/memory"
	"github.com/JakeFAU/archive-harvester/internal/runner"
)

type stubFetcher struct {
	pages  map[int]archive.PageIndex
	bodies map[archive.MessageID]string
}

func (s *stubFetcher) ListMessages(_ context.Context, coord archive.Coordinate) (archive.PageIndex, error) {
	index, ok := s.pages[coord.Page]
	if !ok {
		return nil, errors.New("page unavailable")
	}
	return index, nil
}

func (s *stubFetcher) FetchBody(_ context.Context, _ archive.Coordinate, id archive.MessageID) (string, error) {
	return s.bodies[id], nil
}

// withStubApp swaps the app factory for one backed by the stub fetcher and a
// memory sink. Tests using it must not run in parallel.
func withStubApp(t *testing.T, fetcher archive.PageFetcher) *pubmemory.Sink {
	t.Helper()
	sink := pubmemory.New()
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config, _ *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, zap.NewNop(), app.WithFetcher(fetcher), app.WithSink(sink))
	}
	t.Cleanup(func() { newApp = prev })
	return sink
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.yaml")
	body := "cache:\n  dir: " + filepath.Join(dir, "cache") + "\nfetcher:\n  rps: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, release := newRootCmd()
	defer release()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPublishesResourceIDs(t *testing.T) {
	sink := withStubApp(t, &stubFetcher{
		pages: map[int]archive.PageIndex{1: {"m1"}},
		bodies: map[archive.MessageID]string{
			"m1": "Content-Type: text/plain\r\n\r\nsee https://youtu.be/xyz and https://example.com/none\r\n",
		},
	})

	out, err := execute(t, "crawl", "--config", writeConfig(t),
		"--collection", "g", "--thread", "t", "--first-page", "1", "--last-page", "1")
	require.NoError(t, err)

	var result runner.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, runner.StatusSucceeded, result.Status)
	assert.Equal(t, 1, result.Counters.Messages)
	assert.Equal(t, 2, result.Counters.URLs)
	assert.Equal(t, 1, result.Counters.Unresolved)
	assert.Equal(t, []string{"xyz"}, sink.Added())
}

func TestCrawlCommandFailsWhenEveryPageFails(t *testing.T) {
	withStubApp(t, &stubFetcher{})

	_, err := execute(t, "crawl", "--config", writeConfig(t),
		"--collection", "g", "--thread", "t", "--first-page", "1", "--last-page", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl failed")
}

func TestMessagesCommandPrintsBodies(t *testing.T) {
	withStubApp(t, &stubFetcher{
		pages:  map[int]archive.PageIndex{3: {"a", "b"}},
		bodies: map[archive.MessageID]string{"a": "first body", "b": "second body"},
	})

	out, err := execute(t, "messages", "--config", writeConfig(t),
		"--collection", "g", "--thread", "t", "--page", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "==> g/t/3/a <==\nfirst body")
	assert.Contains(t, out, "==> g/t/3/b <==\nsecond body")
	assert.Less(t, strings.Index(out, "first body"), strings.Index(out, "second body"))
}

func TestMessagesCommandReportsListFailure(t *testing.T) {
	withStubApp(t, &stubFetcher{})

	_, err := execute(t, "messages", "--config", writeConfig(t), "--collection", "g", "--thread", "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrFetchFailure)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	withStubApp(t, &stubFetcher{})

	_, err := execute(t, "crawl", "--config", writeConfig(t), "--first-page", "5", "--last-page", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
