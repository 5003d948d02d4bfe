package olaf

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"OLAF_API_BASE_URL": "https://api.olaf.social",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://api.olaf.social", cfg.BaseURL)
	assert.Equal(t, 15, cfg.RequestTimeoutSeconds)
	assert.Equal(t, 10, cfg.AuthTimeoutSeconds)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1000, cfg.BackoffBaseMillis)
	assert.Equal(t, 0, cfg.FirstRetryDelayMillis)
	assert.Equal(t, 300, cfg.CacheTTLSeconds)
	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, "olaf-client.db", cfg.Store.Path)
	assert.True(t, cfg.Store.Valkey.TLS)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"OLAF_API_BASE_URL":             "http://localhost:3000",
		"OLAF_MAX_ATTEMPTS":             "5",
		"OLAF_FIRST_RETRY_DELAY_MILLIS": "20000",
		"OLAF_STORE_TYPE":               "valkey",
		"OLAF_VALKEY_ADDRESS":           "localhost:6379",
		"OLAF_VALKEY_TLS":               "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 20000, cfg.FirstRetryDelayMillis)
	assert.Equal(t, "valkey", cfg.Store.Type)
	assert.Equal(t, "localhost:6379", cfg.Store.Valkey.Address)
	assert.False(t, cfg.Store.Valkey.TLS)
}

func TestLoad_BaseURLRequired(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "OLAF_API_BASE_URL")
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			BaseURL:     "https://api.olaf.social",
			MaxAttempts: 3,
			Store:       StoreConfig{Type: "memory"},
		}
	}

	c := valid()
	assert.NoError(t, c.Validate())

	c = valid()
	c.MaxAttempts = 0
	assert.ErrorContains(t, c.Validate(), "OLAF_MAX_ATTEMPTS")

	c = valid()
	c.Store.Type = "postgres"
	assert.ErrorContains(t, c.Validate(), "OLAF_STORE_TYPE")

	c = valid()
	c.Store.Type = "valkey"
	assert.ErrorContains(t, c.Validate(), "OLAF_VALKEY_ADDRESS")

	c = valid()
	c.Store.Type = "sqlite"
	c.Store.Path = ""
	assert.ErrorContains(t, c.Validate(), "OLAF_STORE_PATH")
}
