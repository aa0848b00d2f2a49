// Package collyfetcher reads raw archive messages over plain HTTP with gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/fetcher"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Cookie is sent with every request, carrying an authenticated session.
	Cookie        string
	RespectRobots bool
	Timeout       time.Duration
	// RobotsTimeout bounds each robots.txt attempt when RespectRobots is set.
	RobotsTimeout time.Duration
}

// RawFetcher implements archive.BodyFetcher against the raw message endpoint.
type RawFetcher struct {
	cfg           Config
	urls          fetcher.URLs
	logger        *zap.Logger
	transport     http.RoundTripper
	robotsBackoff []time.Duration
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a RawFetcher.
func New(cfg Config, urls fetcher.URLs, logger *zap.Logger) *RawFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := newHTTPTransport()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(transport)

	return &RawFetcher{
		cfg:           cfg,
		urls:          urls,
		logger:        logger,
		transport:     transport,
		robotsBackoff: defaultRobotsBackoff,
		baseCollector: c,
	}
}

// FetchBody GETs the raw text of a message.
func (f *RawFetcher) FetchBody(ctx context.Context, coord archive.Coordinate, id archive.MessageID) (string, error) {
	target := f.urls.RawMessage(coord, id)
	result := &fetchResult{}
	collector, robots := f.buildCollector(result)

	if err := f.runCollector(ctx, collector, target); err != nil {
		return "", err
	}
	if reason := robots.Fallback(); reason != "" {
		f.logger.Warn("robots.txt unavailable; proceeding as allowed",
			zap.String("url", target), zap.String("reason", reason))
	}
	if result.err != nil {
		return "", fmt.Errorf("colly response failed: %w", result.err)
	}
	return string(result.body), nil
}

func (f *RawFetcher) buildCollector(result *fetchResult) (*colly.Collector, *archiveTransport) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	var robots *archiveTransport
	if f.cfg.RespectRobots {
		robots = newArchiveTransport(f.transport, f.cfg.RobotsTimeout, f.robotsBackoff)
		collector.WithTransport(robots)
	} else {
		collector.WithTransport(f.transport)
	}

	f.configureCollectorHooks(collector, result)
	return collector, robots
}

func (f *RawFetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.Cookie != "" {
			r.Headers.Set("Cookie", f.cfg.Cookie)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		result.err = err
	})
}

func (f *RawFetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("colly fetch canceled: %w", ctxErr)
			}
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
