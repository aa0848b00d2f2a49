// Package coordinator resolves a page coordinate to its message bodies,
// consulting the pagination and body caches before the remote archive and
// filling every gap it fetches.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/cache"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

const defaultFetchTimeout = 60 * time.Second

// Config controls Coordinator behavior.
type Config struct {
	// FetchTimeout bounds every PageFetcher call. Expiry is a fetch failure.
	FetchTimeout time.Duration
	// Origin is the archive URL handed to the limiter so pacing is per host.
	Origin string
}

// Coordinator produces message streams for page coordinates.
type Coordinator struct {
	pages   *cache.Pagination
	bodies  *cache.Bodies
	fetcher archive.PageFetcher
	limiter archive.Limiter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Coordinator. limiter may be nil.
func New(
	pages *cache.Pagination,
	bodies *cache.Bodies,
	fetcher archive.PageFetcher,
	limiter archive.Limiter,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		pages:   pages,
		bodies:  bodies,
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// MessagesForPage returns a lazy stream over the messages of coord. Nothing is
// fetched until the first call to Next.
func (c *Coordinator) MessagesForPage(coord archive.Coordinate) *Stream {
	return &Stream{c: c, coord: coord}
}

// resolveIndex returns the page index from cache, or lists the page remotely
// and records the result. A failed listing writes nothing.
func (c *Coordinator) resolveIndex(ctx context.Context, coord archive.Coordinate) (archive.PageIndex, error) {
	if err := coord.Validate(); err != nil {
		return nil, fmt.Errorf("resolve page index: %w", err)
	}
	if index, ok := c.pages.Get(coord); ok {
		c.logger.Debug("page index cache hit", pageFields(coord)...)
		return index, nil
	}

	c.logger.Info("listing page", pageFields(coord)...)
	var index archive.PageIndex
	err := c.call(ctx, archive.OpList, func(callCtx context.Context) error {
		var listErr error
		index, listErr = c.fetcher.ListMessages(callCtx, coord)
		return listErr
	})
	if err != nil {
		return nil, &archive.FetchError{Op: archive.OpList, Coordinate: coord, Err: err}
	}

	if err := c.pages.Put(ctx, coord, index); err != nil {
		return nil, fmt.Errorf("record page index: %w", err)
	}
	if !index.Complete() {
		c.logger.Info("page is partial; it will be listed again next time",
			append(pageFields(coord), zap.Int("messages", len(index)))...)
	}
	return index, nil
}

// resolveBody returns the cached body or fetches and stores it. A fetch failure
// yields an empty body with the error attached.
func (c *Coordinator) resolveBody(ctx context.Context, coord archive.Coordinate, id archive.MessageID) archive.Message {
	msg := archive.Message{Coordinate: coord, ID: id}
	fields := append(pageFields(coord), zap.String("message_id", string(id)))

	body, ok, err := c.bodies.Get(ctx, coord, id)
	if err != nil {
		c.logger.Warn("body cache read failed; fetching", append(fields, zap.Error(err))...)
	}
	if ok {
		msg.Body = body
		return msg
	}

	err = c.call(ctx, archive.OpBody, func(callCtx context.Context) error {
		var fetchErr error
		body, fetchErr = c.fetcher.FetchBody(callCtx, coord, id)
		return fetchErr
	})
	if err != nil {
		msg.Err = &archive.FetchError{Op: archive.OpBody, Coordinate: coord, MessageID: id, Err: err}
		c.logger.Warn("body fetch failed; substituting empty text", append(fields, zap.Error(err))...)
		return msg
	}

	msg.Body = body
	if err := c.bodies.Put(ctx, coord, id, body); err != nil {
		c.logger.Error("body cache write failed", append(fields, zap.Error(err))...)
	}
	return msg
}

// call runs one remote operation under the limiter and the fetch timeout.
func (c *Coordinator) call(ctx context.Context, op archive.FetchOp, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.cfg.Origin); err != nil {
			return err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	switch {
	case err == nil:
		metrics.ObserveFetch(string(op), metrics.ResultOK, time.Since(start))
	case errors.Is(err, context.DeadlineExceeded):
		metrics.ObserveFetch(string(op), metrics.ResultTimeout, time.Since(start))
		return fmt.Errorf("timed out after %s: %w", c.cfg.FetchTimeout, err)
	default:
		metrics.ObserveFetch(string(op), metrics.ResultFailed, time.Since(start))
	}
	return err
}

func pageFields(coord archive.Coordinate) []zap.Field {
	return []zap.Field{
		zap.String("collection", coord.Collection),
		zap.String("thread", coord.Thread),
		zap.Int("page", coord.Page),
	}
}
