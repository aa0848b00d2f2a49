package archive

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// PageSize is the number of message slots rendered on one archive page.
const PageSize = 25

// MessageID identifies one message inside a thread.
type MessageID string

// Coordinate identifies one page of a thread.
type Coordinate struct {
	Collection string `json:"collection"`
	Thread     string `json:"thread"`
	Page       int    `json:"page"`
}

// Validate rejects coordinates that cannot address a page.
func (c Coordinate) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("collection id is required")
	}
	if strings.TrimSpace(c.Thread) == "" {
		return errors.New("thread id is required")
	}
	if c.Page < 1 {
		return fmt.Errorf("page number must be >= 1, got %d", c.Page)
	}
	if strings.ContainsAny(c.Collection+c.Thread, `/\`) {
		return errors.New("collection and thread ids must not contain path separators")
	}
	if isDotSegment(c.Collection) || isDotSegment(c.Thread) {
		return errors.New("collection and thread ids must not be . or ..")
	}
	return nil
}

// isDotSegment reports whether s would name the current or parent directory.
func isDotSegment(s string) bool {
	return s == "." || s == ".."
}

// PageKey is the string form of the page number used in persisted indexes.
func (c Coordinate) PageKey() string {
	return strconv.Itoa(c.Page)
}

// FirstSlot returns the 1-based slot of the first message on the page.
func (c Coordinate) FirstSlot() int {
	return (c.Page-1)*PageSize + 1
}

// LastSlot returns the 1-based slot of the last message on the page.
func (c Coordinate) LastSlot() int {
	return c.Page * PageSize
}

// ObjectPath returns the storage path of one message body: collection/thread/page/id.
func (c Coordinate) ObjectPath(id MessageID) string {
	return path.Join(c.Collection, c.Thread, c.PageKey(), string(id))
}

// String renders the coordinate for logs.
func (c Coordinate) String() string {
	return path.Join(c.Collection, c.Thread, c.PageKey())
}

// PageIndex is the ordered list of message ids observed on one page.
type PageIndex []MessageID

// Complete reports whether every slot of the page is filled. Shorter pages may
// still be accumulating messages and are never trusted as final.
func (p PageIndex) Complete() bool {
	return len(p) == PageSize
}

// Clone returns a copy that does not share the backing array.
func (p PageIndex) Clone() PageIndex {
	if p == nil {
		return nil
	}
	return append(PageIndex(nil), p...)
}

// Message is one element of a page crawl: the id, the raw body, and the error
// that prevented the body from being fetched, if any.
type Message struct {
	Coordinate Coordinate
	ID         MessageID
	Body       string
	Err        error
}

// Path returns the storage path of the message.
func (m Message) Path() string {
	return m.Coordinate.ObjectPath(m.ID)
}

// ResourceReference pairs a URL found in message text with the resource id
// derived from it. ID is empty when no known pattern matched.
type ResourceReference struct {
	URL string
	ID  string
}

// Resolved reports whether a resource id was derived from the URL.
func (r ResourceReference) Resolved() bool {
	return r.ID != ""
}
