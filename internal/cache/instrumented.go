package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/olafsocial/olaf-go/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"olaf.cache.operations",
			metric.WithDescription("Total cache operations"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"olaf.cache.operation.duration",
			metric.WithDescription("Cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented wraps a Cache with metrics instrumentation. The name
// attribute distinguishes the cache instances (feed, posts, comments).
type Instrumented[T any] struct {
	wrapped Cache[T]
	name    string
}

// NewInstrumented creates an instrumented cache wrapper.
func NewInstrumented[T any](cache Cache[T], name string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped: cache,
		name:    name,
	}
}

// Get retrieves a value from the cache.
func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.record(ctx, "get", status, time.Since(start))

	return value, found, err
}

// Set stores a value in the cache.
func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	i.record(ctx, "set", outcome(err), time.Since(start))
	return err
}

// Invalidate removes a value from the cache.
func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Invalidate(ctx, key)
	i.record(ctx, "invalidate", outcome(err), time.Since(start))
	return err
}

// Close releases any resources held by the cache.
func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (i *Instrumented[T]) record(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("cache.name", i.name),
		attribute.String("cache.operation", operation),
		attribute.String("cache.status", status),
	)
	if cacheOperations != nil {
		cacheOperations.Add(ctx, 1, attrs)
	}
	if cacheDuration != nil {
		cacheDuration.Record(ctx, duration.Seconds(), attrs)
	}
}
