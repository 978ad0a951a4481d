package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"universe/internal/store"
	"universe/internal/upstream"
)

const (
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"

	defaultListen    = "127.0.0.1:3000"
	defaultCachePath = "./scape/events.json"
	defaultRefresh   = "5 0 * * *"
)

// UpstreamConfig describes the calendar API the events cache proxies.
type UpstreamConfig struct {
	URL            string `yaml:"url" json:"url"`
	Host           string `yaml:"host,omitempty" json:"host,omitempty"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" json:"accept_language"`
	MaxEvents      int    `yaml:"max_events" json:"max_events"`
	RequireImages  bool   `yaml:"require_images" json:"require_images"`

	// Timeout bounds a single upstream round trip (e.g. "15s").
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// InsecureSkipVerify disables TLS certificate checks. Test environments
	// with self-signed upstreams only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// CacheConfig selects where the events blob lives.
type CacheConfig struct {
	// Backend is "file" (default) or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the canonical blob location for the file backend.
	Path string `yaml:"path" json:"path"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for admin endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose calendar day bounds cache freshness.
	// Empty means the process local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`

	// RefreshCron is a cron spec for warming the cache shortly after
	// midnight. Empty disables the scheduler.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// BasicAuth, if set, protects the admin endpoints. /events stays open.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		LogLevel: "info",
		Upstream: UpstreamConfig{
			URL:            upstream.DefaultURL,
			UserAgent:      upstream.DefaultUserAgent,
			AcceptLanguage: upstream.DefaultAcceptLanguage,
			MaxEvents:      upstream.DefaultMaxEvents,
			Timeout:        upstream.DefaultTimeout,
		},
		Cache: CacheConfig{
			Backend: CacheBackendFile,
			Path:    defaultCachePath,
		},
		RefreshCron: defaultRefresh,
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Upstream.URL == "" {
		c.Upstream.URL = upstream.DefaultURL
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = upstream.DefaultUserAgent
	}
	if c.Upstream.AcceptLanguage == "" {
		c.Upstream.AcceptLanguage = upstream.DefaultAcceptLanguage
	}
	if c.Upstream.MaxEvents <= 0 {
		c.Upstream.MaxEvents = upstream.DefaultMaxEvents
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = upstream.DefaultTimeout
	}

	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendMemory:
	default:
		c.Cache.Backend = CacheBackendFile
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaultCachePath
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	// Blank credentials mean auth is off.
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// UpstreamClientConfig converts the YAML section to the client's config.
func (c *Config) UpstreamClientConfig() upstream.Config {
	return upstream.Config{
		URL:                c.Upstream.URL,
		Host:               c.Upstream.Host,
		UserAgent:          c.Upstream.UserAgent,
		AcceptLanguage:     c.Upstream.AcceptLanguage,
		MaxEvents:          c.Upstream.MaxEvents,
		RequireImages:      c.Upstream.RequireImages,
		Timeout:            c.Upstream.Timeout,
		InsecureSkipVerify: c.Upstream.InsecureSkipVerify,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 perms, creating the parent
// directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, data, 0o700, 0o600)
}
