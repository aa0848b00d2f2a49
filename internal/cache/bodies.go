package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

const bodyContentType = "message/rfc822"

// Bodies caches raw message bodies in a BlobStore addressed by
// collection/thread/page/message-id.
type Bodies struct {
	store  archive.BlobStore
	hasher archive.Hasher
	logger *zap.Logger
}

// NewBodies builds a body cache. hasher may be nil, which disables the
// divergence check on repeated writes.
func NewBodies(store archive.BlobStore, hasher archive.Hasher, logger *zap.Logger) (*Bodies, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bodies{store: store, hasher: hasher, logger: logger}, nil
}

// Get returns the stored body. ok is false when nothing is stored.
func (b *Bodies) Get(ctx context.Context, coord archive.Coordinate, id archive.MessageID) (string, bool, error) {
	if err := checkMessageID(id); err != nil {
		return "", false, fmt.Errorf("read body: %w", err)
	}
	body, ok, err := b.read(ctx, coord.ObjectPath(id))
	switch {
	case err != nil:
		metrics.ObserveCacheLookup(metrics.TierBody, metrics.ResultError)
	case ok:
		metrics.ObserveCacheLookup(metrics.TierBody, metrics.ResultHit)
	default:
		metrics.ObserveCacheLookup(metrics.TierBody, metrics.ResultMiss)
	}
	return body, ok, err
}

// Put stores body for the message. Bodies are immutable: when one already
// exists it is kept, and a differing digest is logged.
func (b *Bodies) Put(ctx context.Context, coord archive.Coordinate, id archive.MessageID, body string) error {
	if err := coord.Validate(); err != nil {
		return fmt.Errorf("store body: %w", err)
	}
	if err := checkMessageID(id); err != nil {
		return fmt.Errorf("store body: %w", err)
	}
	objectPath := coord.ObjectPath(id)

	existing, ok, err := b.read(ctx, objectPath)
	if err != nil {
		return err
	}
	if ok {
		b.checkDivergence(objectPath, existing, body)
		return nil
	}

	if _, err := b.store.PutObject(ctx, objectPath, bodyContentType, strings.NewReader(body)); err != nil {
		return fmt.Errorf("store body %s: %w", objectPath, err)
	}
	return nil
}

func (b *Bodies) read(ctx context.Context, objectPath string) (string, bool, error) {
	rc, err := b.store.GetObject(ctx, objectPath)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read body %s: %w", objectPath, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			b.logger.Debug("close body reader failed", zap.String("path", objectPath), zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", false, fmt.Errorf("read body %s: %w", objectPath, err)
	}
	return string(data), true, nil
}

func (b *Bodies) checkDivergence(objectPath, existing, incoming string) {
	if b.hasher == nil || existing == incoming {
		return
	}
	have, err := b.hasher.Hash([]byte(existing))
	if err != nil {
		return
	}
	got, err := b.hasher.Hash([]byte(incoming))
	if err != nil {
		return
	}
	b.logger.Warn("archived body changed upstream; keeping stored copy",
		zap.String("path", objectPath),
		zap.String("stored_sha256", have),
		zap.String("fetched_sha256", got),
	)
}

// checkMessageID rejects ids that would escape their thread directory.
func checkMessageID(id archive.MessageID) error {
	s := string(id)
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return fmt.Errorf("invalid message id %q", id)
	}
	return nil
}
