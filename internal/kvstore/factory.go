package kvstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Config selects and configures the durable store implementation.
type Config struct {
	// Type selects the store implementation: "sqlite" (default), "valkey"
	// or "memory".
	Type string

	// Path is the database file location for the sqlite store.
	Path string

	// Valkey holds connection settings for the valkey store.
	Valkey ValkeyConfig
}

// ValkeyConfig specifies valkey connection settings.
type ValkeyConfig struct {
	Address  string
	TLS      bool
	Username string
	Password string
}

// Validate checks that the store configuration is usable.
func (c *Config) Validate() error {
	switch c.Type {
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store path required when store type is sqlite")
		}
	case "valkey":
		if c.Valkey.Address == "" {
			return fmt.Errorf("valkey address required when store type is valkey")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store type %q: must be \"sqlite\", \"valkey\" or \"memory\"", c.Type)
	}
	return nil
}

// NewFromConfig creates the durable store selected by cfg.
func NewFromConfig(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "sqlite":
		log.Info().
			Str("store_type", "sqlite").
			Str("path", cfg.Path).
			Msg("initializing durable store")

		store, err := NewSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		return store, nil

	case "valkey":
		log.Info().
			Str("store_type", "valkey").
			Str("address", cfg.Valkey.Address).
			Bool("tls", cfg.Valkey.TLS).
			Msg("initializing durable store")

		store, err := NewValkey(cfg.Valkey)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey store: %w", err)
		}
		return store, nil

	default:
		log.Info().
			Str("store_type", "memory").
			Msg("initializing non-durable store")

		return NewMemory(), nil
	}
}
