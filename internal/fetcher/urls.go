// Package fetcher holds the archive URL scheme shared by the PageFetcher
// implementations, plus a composite that lists with one fetcher and reads
// bodies with another.
package fetcher

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

const (
	// DefaultBaseURL is the archive root every URL is built from.
	DefaultBaseURL = "https://groups.google.com/forum/"
	// SnippetPrefix prefixes the element id of every message snippet on a
	// listing page. The rest of the element id is the message id.
	SnippetPrefix = "message_snippet_"
)

// URLs builds archive URLs from a base.
type URLs struct {
	base string
}

// NewURLs validates base and returns a URL builder. An empty base selects
// DefaultBaseURL.
func NewURLs(base string) (URLs, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return URLs{}, fmt.Errorf("parse archive base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return URLs{}, errors.New("archive base url must be absolute")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return URLs{base: base}, nil
}

// Base returns the archive root.
func (u URLs) Base() string {
	return u.base
}

// Listing returns the page that renders slots FirstSlot..LastSlot of coord.
func (u URLs) Listing(coord archive.Coordinate) string {
	fragment := fmt.Sprintf("/%s/discussion[%d-%d-false]", coord.Thread, coord.FirstSlot(), coord.LastSlot())
	return u.base + "#!topic/" + coord.Collection + escapePath(fragment)
}

// RawMessage returns the URL serving the raw RFC 822 text of a message.
func (u URLs) RawMessage(coord archive.Coordinate, id archive.MessageID) string {
	return u.base + "message/raw?msg=" + coord.Collection + "/" + coord.Thread + "/" + string(id)
}

// escapePath percent-encodes each segment and keeps the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// MessageIDs turns snippet element ids into a page index, in page order.
// Elements without the snippet prefix or with nothing after it are skipped.
func MessageIDs(elementIDs []string) archive.PageIndex {
	index := make(archive.PageIndex, 0, len(elementIDs))
	for _, elementID := range elementIDs {
		id, ok := strings.CutPrefix(strings.TrimSpace(elementID), SnippetPrefix)
		if !ok || id == "" {
			continue
		}
		index = append(index, archive.MessageID(id))
	}
	return index
}
