// Package runner executes a crawl-and-publish run over a range of pages of one
// thread.
package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/coordinator"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
	"github.com/JakeFAU/archive-harvester/internal/publish"
)

// Message outcomes reported to metrics.
const (
	outcomeProcessed   = "processed"
	outcomeFetchFailed = "fetch_failed"
	outcomeNoText      = "no_text"
	resourceResolved   = "resolved"
	resourceUnresolved = "unresolved"
)

// TextExtractor pulls plain text out of a raw body.
type TextExtractor interface {
	ExtractText(raw string) (string, error)
}

// ReferenceExtractor finds resource references in plain text.
type ReferenceExtractor interface {
	References(text string) []archive.ResourceReference
}

// Plan selects the pages a run visits.
type Plan struct {
	Collection string
	Thread     string
	FirstPage  int
	LastPage   int
}

// Validate checks the plan is runnable.
func (p Plan) Validate() error {
	if p.FirstPage < 1 {
		return fmt.Errorf("first page must be >= 1, got %d", p.FirstPage)
	}
	if p.LastPage < p.FirstPage {
		return fmt.Errorf("last page %d is before first page %d", p.LastPage, p.FirstPage)
	}
	return p.coordinate(p.FirstPage).Validate()
}

// Coordinates lists the pages of the plan in order.
func (p Plan) Coordinates() []archive.Coordinate {
	if p.LastPage < p.FirstPage {
		return nil
	}
	coords := make([]archive.Coordinate, 0, p.LastPage-p.FirstPage+1)
	for page := p.FirstPage; page <= p.LastPage; page++ {
		coords = append(coords, p.coordinate(page))
	}
	return coords
}

func (p Plan) coordinate(page int) archive.Coordinate {
	return archive.Coordinate{Collection: p.Collection, Thread: p.Thread, Page: page}
}

// Status is the terminal state of a run.
type Status string

// Run statuses.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Counters tracks run progress.
type Counters struct {
	PagesSucceeded  int `json:"pages_succeeded"`
	PagesFailed     int `json:"pages_failed"`
	Messages        int `json:"messages"`
	BodyFailures    int `json:"body_failures"`
	NoText          int `json:"no_text"`
	URLs            int `json:"urls"`
	Unresolved      int `json:"unresolved"`
	Published       int `json:"published"`
	PublishFailures int `json:"publish_failures"`
}

// Result summarizes a finished run.
type Result struct {
	RunID    string   `json:"run_id"`
	Status   Status   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Counters Counters `json:"counters"`
}

// Runner wires the coordinator to the parser, the extractor and the publish
// pipeline.
type Runner struct {
	coordinator *coordinator.Coordinator
	parser      TextExtractor
	extractor   ReferenceExtractor
	pipeline    *publish.Pipeline
	sink        archive.PublishSink
	ids         archive.IDGenerator
	logger      *zap.Logger
}

// New constructs a Runner. ids may be nil, in which case runs are unnamed.
func New(
	coord *coordinator.Coordinator,
	parser TextExtractor,
	extractor ReferenceExtractor,
	pipeline *publish.Pipeline,
	sink archive.PublishSink,
	ids archive.IDGenerator,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		coordinator: coord,
		parser:      parser,
		extractor:   extractor,
		pipeline:    pipeline,
		sink:        sink,
		ids:         ids,
		logger:      logger,
	}
}

// Run visits every page of plan in order. A page whose listing fails is counted
// and skipped; it is retried on the next run because nothing was cached.
func (r *Runner) Run(ctx context.Context, plan Plan) (Result, error) {
	if err := plan.Validate(); err != nil {
		return Result{}, fmt.Errorf("validate plan: %w", err)
	}
	result := Result{}
	if r.ids != nil {
		id, err := r.ids.NewID()
		if err != nil {
			return Result{}, fmt.Errorf("new run id: %w", err)
		}
		result.RunID = id
	}
	logger := r.logger.With(zap.String("run_id", result.RunID))
	logger.Info("run started",
		zap.String("collection", plan.Collection),
		zap.String("thread", plan.Thread),
		zap.Int("first_page", plan.FirstPage),
		zap.Int("last_page", plan.LastPage),
	)

	var lastErr error
	for _, coord := range plan.Coordinates() {
		if ctx.Err() != nil {
			break
		}
		if err := r.runPage(ctx, coord, &result.Counters, logger); err != nil {
			result.Counters.PagesFailed++
			lastErr = err
			logger.Error("page failed", zap.Stringer("coordinate", coord), zap.Error(err))
			continue
		}
		result.Counters.PagesSucceeded++
	}

	result.Status, result.Error = deriveFinalStatus(ctx, result.Counters, lastErr)
	logger.Info("run finished",
		zap.String("status", string(result.Status)),
		zap.Any("counters", result.Counters),
	)
	return result, nil
}

func (r *Runner) runPage(ctx context.Context, coord archive.Coordinate, counters *Counters, logger *zap.Logger) error {
	stream := r.coordinator.MessagesForPage(coord)
	for stream.Next(ctx) {
		r.handleMessage(ctx, stream.Message(), counters, logger)
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("page %s: %w", coord, err)
	}
	return nil
}

func (r *Runner) handleMessage(ctx context.Context, msg archive.Message, counters *Counters, logger *zap.Logger) {
	counters.Messages++
	path := msg.Path()
	logger.Info("processing message", zap.String("path", path))

	if msg.Err != nil {
		counters.BodyFailures++
		metrics.ObserveMessage(outcomeFetchFailed)
		return
	}

	text, err := r.parser.ExtractText(msg.Body)
	if err != nil {
		counters.NoText++
		metrics.ObserveMessage(outcomeNoText)
		if !errors.Is(err, archive.ErrNoTextPart) {
			err = fmt.Errorf("%w: %v", archive.ErrNoTextPart, err)
		}
		logger.Warn("no text part; skipping message", zap.String("path", path), zap.Error(err))
		return
	}

	refs := r.extractor.References(text)
	counters.URLs += len(refs)
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !ref.Resolved() {
			counters.Unresolved++
			metrics.ObserveResource(resourceUnresolved)
			logger.Error("failed to parse url",
				zap.String("url", ref.URL),
				zap.String("path", path),
				zap.Error(archive.ErrUnresolvedResource),
			)
			continue
		}
		metrics.ObserveResource(resourceResolved)
		ids = append(ids, ref.ID)
	}
	if len(refs) == 0 {
		logger.Debug("no urls found in message", zap.String("path", path))
	}

	report := r.pipeline.PublishMessage(ctx, msg, text, ids, r.sink)
	counters.Published += len(report.Published())
	counters.PublishFailures += len(report.Failed())
	metrics.ObserveMessage(outcomeProcessed)
}

func deriveFinalStatus(ctx context.Context, counters Counters, lastErr error) (Status, string) {
	errText := ""
	if lastErr != nil {
		errText = lastErr.Error()
	}
	if counters.PagesSucceeded == 0 && errText == "" {
		errText = "no pages were processed"
	}

	switch {
	case ctx.Err() != nil:
		return StatusCanceled, errText
	case counters.PagesSucceeded == 0:
		return StatusFailed, errText
	default:
		return StatusSucceeded, errText
	}
}
