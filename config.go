package olaf

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the SDK's full configuration surface. Defaults suit the hosted
// backend; a UI embedding the SDK can populate the struct directly instead
// of going through the environment.
type Config struct {
	// BaseURL is the root of the Olaf API, e.g. "https://api.olaf.social".
	BaseURL string `env:"OLAF_API_BASE_URL"`

	// RequestTimeoutSeconds bounds each individual request attempt, not
	// the whole retry chain.
	RequestTimeoutSeconds int `env:"OLAF_REQUEST_TIMEOUT_SECS, default=15"`

	// AuthTimeoutSeconds bounds the single-attempt auth calls.
	AuthTimeoutSeconds int `env:"OLAF_AUTH_TIMEOUT_SECS, default=10"`

	// MaxAttempts bounds the transient-failure retry loop.
	MaxAttempts int `env:"OLAF_MAX_ATTEMPTS, default=3"`

	// BackoffBaseMillis is the first retry delay; later delays double.
	BackoffBaseMillis int `env:"OLAF_BACKOFF_BASE_MILLIS, default=1000"`

	// FirstRetryDelayMillis, when set, replaces the first retry delay.
	// Useful against free-tier backends that cold-start: the first retry
	// should wait long enough for the instance to wake.
	FirstRetryDelayMillis int `env:"OLAF_FIRST_RETRY_DELAY_MILLIS, default=0"`

	// CacheTTLSeconds is the freshness window for cached lists.
	CacheTTLSeconds int `env:"OLAF_CACHE_TTL_SECS, default=300"`

	// CacheMaxEntries bounds the in-memory cache tier.
	CacheMaxEntries int `env:"OLAF_CACHE_MAX_ENTRIES, default=10000"`

	Store   StoreConfig
	Observe ObserveConfig
}

// StoreConfig selects the durable store behind the cache mirror and the
// persisted toggle state.
type StoreConfig struct {
	// Type selects the implementation: "sqlite" (default), "valkey" or
	// "memory" (no durability; testing only).
	Type string `env:"OLAF_STORE_TYPE, default=sqlite"`

	// Path is the sqlite database file location.
	Path string `env:"OLAF_STORE_PATH, default=olaf-client.db"`

	Valkey ValkeyConfig
}

// ValkeyConfig specifies valkey connection settings for STORE_TYPE=valkey.
type ValkeyConfig struct {
	Address string `env:"OLAF_VALKEY_ADDRESS"`

	// TLS defaults to true so the secure option is the default.
	TLS bool `env:"OLAF_VALKEY_TLS, default=true"`

	Username string `env:"OLAF_VALKEY_USERNAME"`
	Password string `env:"OLAF_VALKEY_PASSWORD"`
}

// ObserveConfig controls outbound HTTP instrumentation.
type ObserveConfig struct {
	HTTPTransportEnabled bool `env:"OLAF_OBSERVE_HTTP_TRANSPORT_ENABLED, default=false"`
}

// Load reads configuration from the OS environment.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil)
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("OLAF_API_BASE_URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("OLAF_API_BASE_URL is not a valid URL: %w", err)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("OLAF_MAX_ATTEMPTS must be at least 1")
	}

	switch c.Store.Type {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("OLAF_STORE_PATH required when OLAF_STORE_TYPE=sqlite")
		}
	case "valkey":
		if c.Store.Valkey.Address == "" {
			return fmt.Errorf("OLAF_VALKEY_ADDRESS required when OLAF_STORE_TYPE=valkey")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid OLAF_STORE_TYPE %q: must be \"sqlite\", \"valkey\" or \"memory\"", c.Store.Type)
	}

	return nil
}

func (c *Config) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) authTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSeconds) * time.Second
}

func (c *Config) backoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMillis) * time.Millisecond
}

func (c *Config) firstRetryDelay() time.Duration {
	return time.Duration(c.FirstRetryDelayMillis) * time.Millisecond
}

func (c *Config) cacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
