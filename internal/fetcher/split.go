package fetcher

import (
	"context"
	"errors"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// Split is a PageFetcher that delegates listing and body retrieval to
// different implementations, such as a browser for listings and plain HTTP
// for raw bodies.
type Split struct {
	Lister archive.Lister
	Bodies archive.BodyFetcher
}

// ListMessages delegates to Lister.
func (s Split) ListMessages(ctx context.Context, coord archive.Coordinate) (archive.PageIndex, error) {
	return s.Lister.ListMessages(ctx, coord)
}

// FetchBody delegates to Bodies.
func (s Split) FetchBody(ctx context.Context, coord archive.Coordinate, id archive.MessageID) (string, error) {
	return s.Bodies.FetchBody(ctx, coord, id)
}

// ErrListingUnavailable is returned when no browser is configured to render
// listing pages.
var ErrListingUnavailable = errors.New("page listing requires a browser session")

// NoLister fails every listing. It suits runs that only read pages whose index
// is already cached.
type NoLister struct{}

// ListMessages always fails with ErrListingUnavailable.
func (NoLister) ListMessages(context.Context, archive.Coordinate) (archive.PageIndex, error) {
	return nil, ErrListingUnavailable
}
