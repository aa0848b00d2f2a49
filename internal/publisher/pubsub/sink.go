// Package pubsub implements a PublishSink backed by a Google Cloud Pub/Sub
// topic. A downstream consumer adds each resource id to the playlist.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

// Config describes what each published request carries besides the id.
type Config struct {
	PlaylistID string
	RunID      string
}

// Request is the JSON payload of every message.
type Request struct {
	ResourceID  string    `json:"resource_id"`
	PlaylistID  string    `json:"playlist_id"`
	RunID       string    `json:"run_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Sink publishes one message per resource id and waits for the server ack.
type Sink struct {
	topic *pubsub.Topic
	cfg   Config
	clock archive.Clock
}

// New wraps an existing topic handle. clock may be nil.
func New(topic *pubsub.Topic, cfg Config, clock archive.Clock) (*Sink, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is not configured")
	}
	if cfg.PlaylistID == "" {
		return nil, errors.New("pubsub sink requires a playlist id")
	}
	return &Sink{topic: topic, cfg: cfg, clock: clock}, nil
}

// OpenTopic returns a handle to topicID after confirming it exists.
func OpenTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return topic, nil
}

// Add publishes a request for id and blocks until it is acknowledged.
func (s *Sink) Add(ctx context.Context, id string) error {
	data, err := json.Marshal(Request{
		ResourceID:  id,
		PlaylistID:  s.cfg.PlaylistID,
		RunID:       s.cfg.RunID,
		RequestedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal publish request: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"resource_id": id,
			"playlist_id": s.cfg.PlaylistID,
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))

	if _, err := s.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's publish goroutines.
func (s *Sink) Close() {
	s.topic.Stop()
}

func (s *Sink) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
