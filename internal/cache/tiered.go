package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog/log"

	"github.com/olafsocial/olaf-go/internal/kvstore"
)

// Tiered is a two-tier cache: an otter in-memory tier backed by a durable
// mirror. The memory tier is fastest and lost on restart; the durable tier
// survives restarts and is pruned on read when an entry has outlived the
// freshness window. Entries are immutable once stored; a refresh writes a
// new entry.
type Tiered[T any] struct {
	memory  *otter.Cache[string, entry[T]]
	durable kvstore.Store
	ttl     time.Duration
	counter *stats.Counter

	// now is replaceable for freshness tests.
	now func() time.Time
}

// entry is what the memory tier holds: the value plus its original storage
// time. The freshness window is anchored to storedAt in both tiers, so an
// entry promoted out of the durable tier keeps its remaining validity
// rather than starting a new full window.
type entry[T any] struct {
	value    T
	storedAt time.Time
}

// NewTiered creates a two-tier cache over the given durable store. The TTL
// applies identically to both tiers; maxSize bounds the memory tier only.
func NewTiered[T any](durable kvstore.Store, ttl time.Duration, maxSize int) (*Tiered[T], error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}

	counter := stats.NewCounter()
	memory := otter.Must(&otter.Options[string, entry[T]]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, entry[T]](ttl),
	})

	return &Tiered[T]{
		memory:  memory,
		durable: durable,
		ttl:     ttl,
		counter: counter,
		now:     time.Now,
	}, nil
}

// Get retrieves a value, consulting the memory tier first. Memory hits are
// re-checked against the original storage time; the otter TTL is only an
// upper bound. On a memory miss, an unexpired durable entry is promoted
// into memory and returned; an expired or version-mismatched durable entry
// is deleted and reported as a miss.
func (c *Tiered[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	if cached, ok := c.memory.GetEntry(key); ok {
		if c.now().Sub(cached.Value.storedAt) < c.ttl {
			return cached.Value.value, true, nil
		}
		c.memory.Invalidate(key)
	}

	raw, found, err := c.durable.Get(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("durable tier read for %q: %w", key, err)
	}
	if !found {
		return zero, false, nil
	}

	envelope, ok := kvstore.Open(raw)
	if !ok || c.now().Sub(envelope.Time()) >= c.ttl {
		// Stale or unreadable: prune so the entry doesn't linger.
		if err := c.durable.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to prune durable cache entry")
		}
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(envelope.Data, &value); err != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to prune durable cache entry")
		}
		return zero, false, fmt.Errorf("unmarshalling durable entry for %q: %w", key, err)
	}

	c.memory.Set(key, entry[T]{value: value, storedAt: envelope.Time()})
	return value, true, nil
}

// Set stores a new entry in both tiers, stamped with the current time.
// Concurrent writers for the same key are last-writer-wins.
func (c *Tiered[T]) Set(ctx context.Context, key string, value T) error {
	storedAt := c.now()
	raw, err := kvstore.Wrap(storedAt, value)
	if err != nil {
		return fmt.Errorf("marshalling entry for %q: %w", key, err)
	}
	if err := c.durable.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("durable tier write for %q: %w", key, err)
	}

	c.memory.Set(key, entry[T]{value: value, storedAt: storedAt})
	return nil
}

// Invalidate removes the entry from both tiers immediately.
func (c *Tiered[T]) Invalidate(ctx context.Context, key string) error {
	c.memory.Invalidate(key)
	if err := c.durable.Delete(ctx, key); err != nil {
		return fmt.Errorf("durable tier delete for %q: %w", key, err)
	}
	return nil
}

// Close releases the memory tier. The durable store is shared and closed
// by its owner.
func (c *Tiered[T]) Close() error {
	return nil
}
