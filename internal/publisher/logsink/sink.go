// Package logsink provides a PublishSink that only logs, for dry runs.
package logsink

import (
	"context"

	"go.uber.org/zap"
)

// Sink logs each resource id it is given.
type Sink struct {
	logger     *zap.Logger
	playlistID string
}

// New returns a Sink writing to logger.
func New(logger *zap.Logger, playlistID string) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger, playlistID: playlistID}
}

// Add logs id and always succeeds.
func (s *Sink) Add(_ context.Context, id string) error {
	s.logger.Info("would add resource to playlist",
		zap.String("resource_id", id),
		zap.String("playlist_id", s.playlistID),
	)
	return nil
}
