package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

func newExtractor(t *testing.T, hosts ...string) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	if len(hosts) > 0 {
		cfg.ShortHosts = hosts
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestExtractURLsSkipsQuotedLines(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	urls := e.ExtractURLs("see http://a.example/x\n> http://b.example/y\n")
	assert.Equal(t, []string{"http://a.example/x"}, urls)
}

func TestExtractURLsSplitsOnEveryLineBoundary(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	for _, sep := range []string{"\r", "\v", "\f", "\x1c", "\u0085", "\u2028", "\u2029"} {
		text := "see http://a.example/x" + sep + "> http://b.example/y" + sep
		assert.Equal(t, []string{"http://a.example/x"}, e.ExtractURLs(text), "separator %q", sep)
	}
}

func TestExtractURLsDeduplicates(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	text := "https://b.example/2 and http://a.example/1\r\nagain http://a.example/1\r\n>https://c.example/3\r\n"
	assert.Equal(t, []string{"http://a.example/1", "https://b.example/2"}, e.ExtractURLs(text))
}

func TestExtractURLsEmpty(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	assert.Empty(t, e.ExtractURLs(""))
	assert.Empty(t, e.ExtractURLs("no links here\n> nor http://quoted.example\n"))
}

func TestExtractURLsKeepsPercentEncoding(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	urls := e.ExtractURLs("go http://a.example/a%20b?x=1&y=2 now")
	assert.Equal(t, []string{"http://a.example/a%20b?x=1&y=2"}, urls)
}

func TestResolveID(t *testing.T) {
	t.Parallel()

	e := newExtractor(t, "short.host")
	cases := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{url: "http://host/watch?v=abc123&x=1", want: "abc123", wantOK: true},
		{url: "http://short.host/xyz789", want: "xyz789", wantOK: true},
		{url: "http://host/nopattern"},
		{url: "http://host/watch?v=&x=1"},
		{url: "http://shortXhost/xyz789", want: "xyz789", wantOK: true},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			got, ok := e.ResolveID(tc.url)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveIDDefaultShortHost(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	id, ok := e.ResolveID("https://youtu.be/dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, "dQw4w9WgXcQ", id)

	// The host dot is a wildcard, as in the archive's original matching rules.
	id, ok = e.ResolveID("http://youtuXbe/abc")
	require.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestReferences(t *testing.T) {
	t.Parallel()

	e := newExtractor(t)
	refs := e.References("http://host/watch?v=abc123\nhttp://host/plain\n")
	assert.Equal(t, []archive.ResourceReference{
		{URL: "http://host/plain"},
		{URL: "http://host/watch?v=abc123", ID: "abc123"},
	}, refs)
}

func TestNewRequiresQueryParam(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
