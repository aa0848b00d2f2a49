package archive

import (
	"context"
	"io"
	"time"
)

// PageFetcher retrieves listings and raw bodies from the remote archive.
type PageFetcher interface {
	ListMessages(ctx context.Context, coord Coordinate) (PageIndex, error)
	FetchBody(ctx context.Context, coord Coordinate, id MessageID) (string, error)
}

// Lister resolves the message ids rendered on a page.
type Lister interface {
	ListMessages(ctx context.Context, coord Coordinate) (PageIndex, error)
}

// BodyFetcher resolves a message id to its raw body.
type BodyFetcher interface {
	FetchBody(ctx context.Context, coord Coordinate, id MessageID) (string, error)
}

// PublishSink receives resolved resource ids.
type PublishSink interface {
	Add(ctx context.Context, resourceID string) error
}

// IndexStore persists page indexes. LoadAll is called once at startup; Save is
// called for every confirmed page and must be durable before it returns.
type IndexStore interface {
	LoadAll(ctx context.Context) (map[Coordinate]PageIndex, error)
	Save(ctx context.Context, coord Coordinate, index PageIndex) error
}

// BlobStore reads and writes raw artifacts. GetObject returns ErrNotFound when
// nothing is stored at path.
type BlobStore interface {
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Limiter paces calls to the remote archive.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
