// Package publish hands resolved resource ids to a PublishSink one at a time,
// isolating failures per id.
package publish

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// Outcome is the result of submitting one resource id.
type Outcome struct {
	ResourceID string
	// Err is a *archive.PublishError, or nil on success.
	Err error
}

// Report lists the outcome of every id, in submission order.
type Report struct {
	Outcomes []Outcome
}

// Published returns the ids the sink accepted.
func (r Report) Published() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Err == nil {
			ids = append(ids, o.ResourceID)
		}
	}
	return ids
}

// Failed returns the outcomes the sink rejected.
func (r Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Pipeline submits resource ids to a sink.
type Pipeline struct {
	logger *zap.Logger
}

// New returns a Pipeline that logs through logger.
func New(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// PublishAll calls sink.Add for every id. A rejected id is logged and recorded,
// and the remaining ids are still submitted. Once ctx is done the remaining ids
// are recorded as failed without reaching the sink.
func (p *Pipeline) PublishAll(ctx context.Context, ids []string, sink archive.PublishSink) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(ids))}
	for _, id := range ids {
		err := ctx.Err()
		if err == nil {
			err = sink.Add(ctx, id)
		}
		if err != nil {
			metrics.ObservePublish(metrics.ResultFailed)
			p.logger.Error("failed to publish resource", zap.String("resource_id", id), zap.Error(err))
			report.Outcomes = append(report.Outcomes, Outcome{
				ResourceID: id,
				Err:        &archive.PublishError{ResourceID: id, Err: err},
			})
			continue
		}
		metrics.ObservePublish(metrics.ResultOK)
		p.logger.Info("published", zap.String("resource_id", id))
		report.Outcomes = append(report.Outcomes, Outcome{ResourceID: id})
	}
	return report
}

// PublishMessage publishes the ids found in one message. When text is not
// blank but no ids were found a warning is logged, since that may point at an
// extraction gap rather than a message without links.
func (p *Pipeline) PublishMessage(ctx context.Context, msg archive.Message, text string, ids []string, sink archive.PublishSink) Report {
	if len(ids) == 0 {
		if strings.TrimSpace(text) != "" {
			p.logger.Warn("no resource ids found in message", zap.String("path", msg.Path()))
		}
		return Report{}
	}
	return p.PublishAll(ctx, ids, sink)
}
