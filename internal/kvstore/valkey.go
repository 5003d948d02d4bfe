package kvstore

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// Valkey is a Store backed by a valkey server. It suits deployments where
// several kiosk-style clients on one host share durable state, or where an
// operator already runs valkey locally. Persistence across restarts is the
// server's responsibility (it must be configured with a persistent mode).
type Valkey struct {
	client valkey.Client
}

// NewValkey connects to the valkey server described by cfg.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
	}

	if cfg.Username != "" || cfg.Password != "" {
		opts.Username = cfg.Username
		opts.Password = cfg.Password
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("creating valkey client: %w", err)
	}

	return &Valkey{client: client}, nil
}

// Get retrieves the blob for key.
func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result := v.client.Do(ctx, v.client.B().Get().Key(key).Build())
	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading key %q: %w", key, err)
	}

	value, err := result.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("decoding key %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores the blob for key, replacing any existing value.
func (v *Valkey) Set(ctx context.Context, key string, value []byte) error {
	cmd := v.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Delete removes the blob for key.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// Close releases the valkey connection.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
