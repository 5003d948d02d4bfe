package kvstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	storedAt := time.Now().Truncate(time.Millisecond)

	raw, err := Wrap(storedAt, map[string]string{"hello": "world"})
	require.NoError(t, err)

	envelope, ok := Open(raw)
	require.True(t, ok)
	assert.Equal(t, SchemaVersion, envelope.Version)
	assert.Equal(t, storedAt.UnixMilli(), envelope.StoredAt)

	var value map[string]string
	require.NoError(t, json.Unmarshal(envelope.Data, &value))
	assert.Equal(t, "world", value["hello"])
}

func TestEnvelope_VersionMismatchDiscarded(t *testing.T) {
	raw := []byte(`{"v":999,"at":12345,"data":{"hello":"world"}}`)

	_, ok := Open(raw)
	assert.False(t, ok)
}

func TestEnvelope_CorruptDiscarded(t *testing.T) {
	_, ok := Open([]byte(`not json at all`))
	assert.False(t, ok)
}

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	value, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), value)

	require.NoError(t, store.Delete(ctx, "key"))
	_, found, err = store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLite_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "key", []byte("value")))

	value, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), value)

	// overwrite is last-writer-wins
	require.NoError(t, store.Set(ctx, "key", []byte("replacement")))
	value, _, err = store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("replacement"), value)

	require.NoError(t, store.Delete(ctx, "key"))
	_, found, err = store.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)

	// deleting an absent key is not an error
	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	store, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "durable", []byte("still here")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Get(ctx, "durable")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("still here"), value)
}

func TestFactoryValidate(t *testing.T) {
	assert.NoError(t, (&Config{Type: "sqlite", Path: "x.db"}).Validate())
	assert.NoError(t, (&Config{Type: "memory"}).Validate())
	assert.Error(t, (&Config{Type: "sqlite"}).Validate())
	assert.Error(t, (&Config{Type: "valkey"}).Validate())
	assert.Error(t, (&Config{Type: "postgres"}).Validate())
}

func TestFactory_CreatesSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := NewFromConfig(ctx, Config{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "kv.db"),
	})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLite)
	assert.True(t, ok)
}
