// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/archive-harvester/internal/logging"
	"github.com/JakeFAU/archive-harvester/internal/resource"
)

// EnvPrefix prefixes every environment override, as in HARVESTER_CACHE_DIR.
const EnvPrefix = "HARVESTER"

// Fetcher modes.
const (
	ModeHeadless = "headless"
	ModeHTTP     = "http"
	ModeHybrid   = "hybrid"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Publish sinks.
const (
	SinkLog    = "log"
	SinkMemory = "memory"
	SinkPubSub = "pubsub"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config  `mapstructure:"logging"`
	Archive  ArchiveConfig   `mapstructure:"archive"`
	Fetcher  FetcherConfig   `mapstructure:"fetcher"`
	Cache    CacheConfig     `mapstructure:"cache"`
	GCS      GCSConfig       `mapstructure:"gcs"`
	Postgres PostgresConfig  `mapstructure:"postgres"`
	Publish  PublishConfig   `mapstructure:"publish"`
	Resource resource.Config `mapstructure:"resource"`
	Server   ServerConfig    `mapstructure:"server"`
}

// ArchiveConfig selects the thread and page range to harvest.
type ArchiveConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Collection string `mapstructure:"collection"`
	Thread     string `mapstructure:"thread"`
	FirstPage  int    `mapstructure:"first_page"`
	LastPage   int    `mapstructure:"last_page"`
}

// FetcherConfig controls how the archive is reached.
type FetcherConfig struct {
	Mode              string  `mapstructure:"mode"`
	UserAgent         string  `mapstructure:"user_agent"`
	Cookie            string  `mapstructure:"cookie"`
	CookieFile        string  `mapstructure:"cookie_file"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
	RPS               float64 `mapstructure:"rps"`
	Burst             int     `mapstructure:"burst"`
}

// CacheConfig locates the two cache tiers.
type CacheConfig struct {
	Dir          string `mapstructure:"dir"`
	IndexFile    string `mapstructure:"index_file"`
	IndexBackend string `mapstructure:"index_backend"`
	BodyBackend  string `mapstructure:"body_backend"`
}

// GCSConfig holds the bucket used when bodies live in Cloud Storage.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig controls the relational page index.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublishConfig selects where resolved resource ids go.
type PublishConfig struct {
	Sink       string `mapstructure:"sink"`
	ProjectID  string `mapstructure:"project_id"`
	Topic      string `mapstructure:"topic"`
	PlaylistID string `mapstructure:"playlist_id"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Option customizes the Viper instance before it is unmarshaled.
type Option func(*viper.Viper) error

// WithFlag lets a command-line flag override key when the flag was set.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, the environment and
// any bound flags, in increasing order of precedence.
func Load(path string, opts ...Option) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.console_level", "")
	v.SetDefault("archive.base_url", "https://groups.google.com/forum/")
	v.SetDefault("archive.collection", "")
	v.SetDefault("archive.thread", "")
	v.SetDefault("archive.first_page", 1)
	v.SetDefault("archive.last_page", 32)
	v.SetDefault("fetcher.mode", ModeHybrid)
	v.SetDefault("fetcher.user_agent", "archive-harvester/0.1")
	v.SetDefault("fetcher.cookie", "")
	v.SetDefault("fetcher.cookie_file", "")
	v.SetDefault("fetcher.timeout_seconds", 60)
	v.SetDefault("fetcher.nav_timeout_seconds", 45)
	v.SetDefault("fetcher.max_parallel", 1)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.rps", 0.5)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.index_file", "")
	v.SetDefault("cache.index_backend", BackendFile)
	v.SetDefault("cache.body_backend", BackendLocal)
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("gcs.prefix", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "page_index")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("publish.sink", SinkLog)
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("publish.playlist_id", "")
	v.SetDefault("resource.query_param", "v")
	v.SetDefault("resource.short_hosts", []string{"youtu.be"})
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Archive.FirstPage < 1 {
		return fmt.Errorf("archive.first_page must be >= 1")
	}
	if c.Archive.LastPage < c.Archive.FirstPage {
		return fmt.Errorf("archive.last_page must be >= archive.first_page")
	}
	switch c.Fetcher.Mode {
	case ModeHeadless, ModeHTTP, ModeHybrid:
	default:
		return fmt.Errorf("fetcher.mode must be one of headless, http, hybrid; got %q", c.Fetcher.Mode)
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.nav_timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxParallel < 0 {
		return fmt.Errorf("fetcher.max_parallel must be >= 0")
	}
	if c.Fetcher.RPS < 0 || c.Fetcher.Burst < 0 {
		return fmt.Errorf("fetcher.rps and fetcher.burst must be >= 0")
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	switch c.Cache.IndexBackend {
	case BackendFile:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn must be set when cache.index_backend is postgres")
		}
	default:
		return fmt.Errorf("cache.index_backend must be file or postgres; got %q", c.Cache.IndexBackend)
	}
	switch c.Cache.BodyBackend {
	case BackendLocal:
	case BackendGCS:
		if c.GCS.Bucket == "" {
			return fmt.Errorf("gcs.bucket must be set when cache.body_backend is gcs")
		}
	default:
		return fmt.Errorf("cache.body_backend must be local or gcs; got %q", c.Cache.BodyBackend)
	}
	switch c.Publish.Sink {
	case SinkLog, SinkMemory:
	case SinkPubSub:
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" || c.Publish.PlaylistID == "" {
			return fmt.Errorf("publish.project_id, publish.topic and publish.playlist_id must be set for the pubsub sink")
		}
	default:
		return fmt.Errorf("publish.sink must be log, memory or pubsub; got %q", c.Publish.Sink)
	}
	if strings.TrimSpace(c.Resource.QueryParam) == "" {
		return fmt.Errorf("resource.query_param must be set")
	}
	return nil
}

// FetchTimeout bounds each archive call.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// NavigationTimeout bounds each browser navigation.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSeconds) * time.Second
}

// IndexPath is the page index file, defaulting to index.json in the cache dir.
func (c Config) IndexPath() string {
	if c.Cache.IndexFile != "" {
		return c.Cache.IndexFile
	}
	return filepath.Join(c.Cache.Dir, "index.json")
}

// BodyDir is where message bodies are written for the local backend.
func (c Config) BodyDir() string {
	return filepath.Join(c.Cache.Dir, "messages")
}
