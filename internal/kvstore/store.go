// Package kvstore provides the durable key→blob stores backing the cache
// mirror and the persisted like-toggle state. The contract is minimal:
// keyed lookup, overwrite, explicit delete, and survival across process
// restarts. TTL semantics live in the layers above.
package kvstore

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a durable key→blob store.
type Store interface {
	// Get retrieves the blob for key. Returns the blob, whether it was
	// found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the blob for key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the blob for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// SchemaVersion tags every persisted envelope. Bump it whenever the shape
// of a stored value changes: readers discard entries with a different
// version instead of guessing at compatibility.
const SchemaVersion = 1

// Envelope wraps every persisted value with its schema version and storage
// time. StoredAt is a unix-millisecond timestamp, used by the cache layer
// for TTL checks.
type Envelope struct {
	Version  int             `json:"v"`
	StoredAt int64           `json:"at"`
	Data     json.RawMessage `json:"data"`
}

// Wrap serializes value into a versioned envelope stamped with storedAt.
func Wrap(storedAt time.Time, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Version:  SchemaVersion,
		StoredAt: storedAt.UnixMilli(),
		Data:     data,
	})
}

// Open parses a persisted envelope. It returns false for corrupt blobs and
// for envelopes written under a different schema version; callers treat
// both as a miss and should delete the entry.
func Open(raw []byte) (Envelope, bool) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, false
	}
	if e.Version != SchemaVersion {
		return Envelope{}, false
	}
	return e, true
}

// Time returns the envelope's storage time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.StoredAt)
}
