package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

const (
	defaultRobotsTimeout = 5 * time.Second
	// reasonRobotsTimeout labels a robots.txt request that never answered in time.
	reasonRobotsTimeout = "robots_timeout"
	allowAllRobots     = "User-agent: *\nAllow: /"
)

// defaultRobotsBackoff spaces the retries of a robots.txt request.
var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// archiveTransport carries every request of one body fetch. Requests for the
// archive's robots.txt get a bounded number of attempts; when all of them time
// out the request is answered with an allow-all document so a slow robots
// endpoint cannot stall body retrieval. Other requests pass straight through.
type archiveTransport struct {
	next    http.RoundTripper
	timeout time.Duration
	backoff []time.Duration

	mu       sync.Mutex
	fallback string
}

func newArchiveTransport(next http.RoundTripper, timeout time.Duration, backoff []time.Duration) *archiveTransport {
	if timeout <= 0 {
		timeout = defaultRobotsTimeout
	}
	return &archiveTransport{next: next, timeout: timeout, backoff: backoff}
}

// RoundTrip implements http.RoundTripper.
func (t *archiveTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("archive roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.fetchRobots(req)
}

// Fallback reports why robots.txt was answered locally, or "" if it was not.
func (t *archiveTransport) Fallback() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fallback
}

func (t *archiveTransport) fetchRobots(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.attempt(req)
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) || req.Context().Err() != nil {
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, err)
		}
		if attempt >= len(t.backoff) {
			t.recordFallback(reasonRobotsTimeout)
			return allowAllResponse(req), nil
		}
		if err := wait(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, err)
		}
	}
}

// attempt sends one request bounded by the robots timeout. The deadline stays
// attached to the body until the caller closes it.
func (t *archiveTransport) attempt(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.next.RoundTrip(req.Clone(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (t *archiveTransport) recordFallback(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fallback != "" {
		return
	}
	t.fallback = reason
	metrics.ObserveRobotsFallback(reason)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "handshake timeout")
}
