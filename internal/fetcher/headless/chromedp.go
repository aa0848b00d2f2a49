// Package headless lists archive pages and reads raw messages through a
// headless Chrome session.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/fetcher"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 500 * time.Millisecond
	// InterstitialText is the link text of the content warning shown before
	// some threads.
	InterstitialText = "do not want to view this content"
)

// Config controls the browser session.
type Config struct {
	MaxParallel int
	UserAgent   string
	// Cookie is sent as the Cookie header on every navigation, carrying an
	// already authenticated session.
	Cookie            string
	NavigationTimeout time.Duration
	// SettleDelay is how long to let client-side rendering run after the
	// document is ready.
	SettleDelay time.Duration
}

// Session implements archive.PageFetcher on top of chromedp.
type Session struct {
	cfg         Config
	urls        fetcher.URLs
	logger      *zap.Logger
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts an exec allocator for headless Chrome. The browser itself is
// launched lazily by the first navigation.
func New(cfg Config, urls fetcher.URLs, logger *zap.Logger) (*Session, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1024, 768),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Session{
		cfg:         cfg,
		urls:        urls,
		logger:      logger,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.allocCancel()
}

// ListMessages renders the listing page of coord, dismisses the content
// warning if one is shown, and reads the message ids off the snippet rows.
func (s *Session) ListMessages(ctx context.Context, coord archive.Coordinate) (archive.PageIndex, error) {
	var (
		elementIDs []string
		dismissed  bool
	)
	target := s.urls.Listing(coord)
	err := s.navigate(ctx, target,
		chromedp.Evaluate(dismissInterstitialJS, &dismissed),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if !dismissed {
				return nil
			}
			s.logger.Info("dismissed content warning", zap.String("url", target))
			return chromedp.Sleep(s.cfg.SettleDelay).Do(ctx)
		}),
		chromedp.Evaluate(snippetIDsJS, &elementIDs),
	)
	if err != nil {
		return nil, err
	}
	return fetcher.MessageIDs(elementIDs), nil
}

// FetchBody opens the raw view of a message and returns its text.
func (s *Session) FetchBody(ctx context.Context, coord archive.Coordinate, id archive.MessageID) (string, error) {
	var body string
	if err := s.navigate(ctx, s.urls.RawMessage(coord, id), chromedp.Evaluate(rawTextJS, &body)); err != nil {
		return "", err
	}
	return body, nil
}

// navigate loads target in a fresh tab, waits for it to settle, runs then,
// and fails if the document itself came back with an error status.
func (s *Session) navigate(ctx context.Context, target string, then ...chromedp.Action) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()
	// Tie the tab to the caller's deadline as well as the navigation timeout.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	actions := append([]chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	}, then...)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromedp run %s: %w", target, ctxErr)
		}
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("chromedp run %s: %w", target, context.DeadlineExceeded)
		}
		return fmt.Errorf("chromedp run %s: %w", target, err)
	}

	status, _, url := meta.snapshotWithFallbacks(target, "")
	if status >= http.StatusBadRequest {
		return fmt.Errorf("load %s: status %d", url, status)
	}
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	headers := s.requestHeaders()
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) requestHeaders() http.Header {
	headers := http.Header{}
	if s.cfg.Cookie != "" {
		headers.Set("Cookie", s.cfg.Cookie)
	}
	return headers
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	header http.Header
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{header: http.Header{}}
}

// capture keeps the first document response, which is the navigation itself.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	header := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			header.Add(key, v)
		case []any:
			for _, entry := range v {
				header.Add(key, fmt.Sprint(entry))
			}
		default:
			header.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.header = header
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, header, url := m.status, m.header.Clone(), m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, header, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
