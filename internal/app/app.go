// Package app initializes and holds long-lived harvester services, acting as a
// dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/cache"
	"github.com/JakeFAU/archive-harvester/internal/clock/system"
	"github.com/JakeFAU/archive-harvester/internal/config"
	"github.com/JakeFAU/archive-harvester/internal/coordinator"
	"github.com/JakeFAU/archive-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/archive-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/archive-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/archive-harvester/internal/hash/sha256"
	"github.com/JakeFAU/archive-harvester/internal/id/uuid"
	"github.com/JakeFAU/archive-harvester/internal/message"
	"github.com/JakeFAU/archive-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/archive-harvester/internal/publish"
	"github.com/JakeFAU/archive-harvester/internal/publisher/logsink"
	pubmemory "github.com/JakeFAU/archive-harvester/internal/publisher/memory"
	pubsubsink "github.com/JakeFAU/archive-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/archive-harvester/internal/resource"
	"github.com/JakeFAU/archive-harvester/internal/runner"
	"github.com/JakeFAU/archive-harvester/internal/storage/gcs"
	"github.com/JakeFAU/archive-harvester/internal/storage/local"
	"github.com/JakeFAU/archive-harvester/internal/storage/postgres"
)

// App holds the shared, long-lived services for one harvester process.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	pages       *cache.Pagination
	bodies      *cache.Bodies
	fetcher     archive.PageFetcher
	coordinator *coordinator.Coordinator
	sink        archive.PublishSink
	runner      *runner.Runner
	closers     []func() error
}

// Option overrides a provider, mainly so tests can avoid browsers and clouds.
type Option func(*App)

// WithFetcher replaces the fetcher selected by fetcher.mode.
func WithFetcher(f archive.PageFetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithSink replaces the sink selected by publish.sink.
func WithSink(s archive.PublishSink) Option {
	return func(a *App) { a.sink = s }
}

// New builds every service named by cfg. It fails fast if any provider cannot
// be initialized, releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	indexStore, err := a.newIndexStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init page index: %w", err)
	}
	if a.pages, err = cache.NewPagination(ctx, indexStore); err != nil {
		return nil, fmt.Errorf("load page index: %w", err)
	}
	blobStore, err := a.newBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init body store: %w", err)
	}
	if a.bodies, err = cache.NewBodies(blobStore, sha256.New(), logger.Named("bodies")); err != nil {
		return nil, fmt.Errorf("init body cache: %w", err)
	}

	urls, err := fetcher.NewURLs(cfg.Archive.BaseURL)
	if err != nil {
		return nil, err
	}
	if a.fetcher == nil {
		if a.fetcher, err = a.newFetcher(urls); err != nil {
			return nil, fmt.Errorf("init fetcher: %w", err)
		}
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Fetcher.RPS, Burst: cfg.Fetcher.Burst})
	a.coordinator = coordinator.New(a.pages, a.bodies, a.fetcher, limiter, coordinator.Config{
		FetchTimeout: cfg.FetchTimeout(),
		Origin:       urls.Base(),
	}, logger.Named("coordinator"))

	runIDs := uuid.New()
	if a.sink == nil {
		if a.sink, err = a.newSink(ctx, runIDs); err != nil {
			return nil, fmt.Errorf("init publish sink: %w", err)
		}
	}

	extractor, err := resource.New(cfg.Resource)
	if err != nil {
		return nil, err
	}
	a.runner = runner.New(
		a.coordinator,
		message.New(message.Config{}),
		extractor,
		publish.New(logger.Named("publish")),
		a.sink,
		runIDs,
		logger.Named("runner"),
	)

	logger.Info("harvester services initialized",
		zap.String("index_backend", cfg.Cache.IndexBackend),
		zap.String("body_backend", cfg.Cache.BodyBackend),
		zap.String("fetcher_mode", cfg.Fetcher.Mode),
		zap.String("sink", cfg.Publish.Sink),
		zap.Int("cached_pages", a.pages.Len()),
	)
	return a, nil
}

func (a *App) newIndexStore(ctx context.Context) (archive.IndexStore, error) {
	switch a.cfg.Cache.IndexBackend {
	case config.BackendPostgres:
		store, err := postgres.NewIndexStore(ctx, postgres.IndexStoreConfig{
			DSN:      a.cfg.Postgres.DSN,
			Table:    a.cfg.Postgres.Table,
			MaxConns: a.cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using postgres page index", zap.String("table", a.cfg.Postgres.Table))
		return store, nil
	default:
		a.logger.Info("using file page index", zap.String("path", a.cfg.IndexPath()))
		return local.NewIndexStore(a.cfg.IndexPath())
	}
}

func (a *App) newBlobStore(ctx context.Context) (archive.BlobStore, error) {
	switch a.cfg.Cache.BodyBackend {
	case config.BackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(client.Close)
		a.logger.Info("using gcs body store", zap.String("bucket", a.cfg.GCS.Bucket))
		return gcs.New(client, gcs.Config{Bucket: a.cfg.GCS.Bucket, Prefix: a.cfg.GCS.Prefix})
	default:
		a.logger.Info("using local body store", zap.String("dir", a.cfg.BodyDir()))
		return local.New(local.Config{BaseDir: a.cfg.BodyDir()})
	}
}

func (a *App) newFetcher(urls fetcher.URLs) (archive.PageFetcher, error) {
	cookie, err := a.cookie()
	if err != nil {
		return nil, err
	}
	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetcher.UserAgent,
		Cookie:        cookie,
		RespectRobots: a.cfg.Fetcher.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	}, urls, a.logger.Named("http"))
	if a.cfg.Fetcher.Mode == config.ModeHTTP {
		return fetcher.Split{Lister: fetcher.NoLister{}, Bodies: raw}, nil
	}

	session, err := headless.New(headless.Config{
		MaxParallel:       a.cfg.Fetcher.MaxParallel,
		UserAgent:         a.cfg.Fetcher.UserAgent,
		Cookie:            cookie,
		NavigationTimeout: a.cfg.NavigationTimeout(),
	}, urls, a.logger.Named("browser"))
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { session.Close(); return nil })
	if a.cfg.Fetcher.Mode == config.ModeHeadless {
		return session, nil
	}
	return fetcher.Split{Lister: session, Bodies: raw}, nil
}

// cookie returns the configured session cookie, reading cookie_file if set.
func (a *App) cookie() (string, error) {
	if a.cfg.Fetcher.CookieFile == "" {
		return a.cfg.Fetcher.Cookie, nil
	}
	data, err := os.ReadFile(a.cfg.Fetcher.CookieFile)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (a *App) newSink(ctx context.Context, ids archive.IDGenerator) (archive.PublishSink, error) {
	switch a.cfg.Publish.Sink {
	case config.SinkMemory:
		return pubmemory.New(), nil
	case config.SinkPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.onClose(client.Close)
		topic, err := pubsubsink.OpenTopic(ctx, client, a.cfg.Publish.Topic)
		if err != nil {
			return nil, err
		}
		runID, err := ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("new session id: %w", err)
		}
		sink, err := pubsubsink.New(topic, pubsubsink.Config{
			PlaylistID: a.cfg.Publish.PlaylistID,
			RunID:      runID,
		}, system.New())
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { sink.Close(); return nil })
		a.logger.Info("publishing to pubsub", zap.String("topic", a.cfg.Publish.Topic))
		return sink, nil
	default:
		return logsink.New(a.logger.Named("sink"), a.cfg.Publish.PlaylistID), nil
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Pages returns the pagination cache.
func (a *App) Pages() *cache.Pagination { return a.pages }

// Coordinator returns the crawl coordinator.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coordinator }

// Runner returns the crawl-and-publish runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// Sink returns the publish sink.
func (a *App) Sink() archive.PublishSink { return a.sink }

// Close releases providers in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
		return err
	}
	return nil
}
