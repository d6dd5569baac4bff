package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/bejimenez/magus/internal/platform/cache"

// Tier reads through an ordered chain of stores and writes to all of them. Store
// failures are logged and treated as misses; they never reach the caller.
type Tier[V any] struct {
	stores   []Store
	enabled  bool
	logger   *zap.Logger
	now      func() time.Time
	tracer   trace.Tracer
	lookups  metric.Int64Counter
	counting bool
}

type tierConfig struct {
	enabled bool
	logger  *zap.Logger
	now     func() time.Time
}

// TierOption customises a Tier.
type TierOption func(*tierConfig)

// WithTierEnabled turns the tier on or off. A disabled tier runs on a NoopStore and
// always misses.
func WithTierEnabled(enabled bool) TierOption {
	return func(cfg *tierConfig) { cfg.enabled = enabled }
}

// WithTierLogger sets the logger used for store failures.
func WithTierLogger(logger *zap.Logger) TierOption {
	return func(cfg *tierConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithTierClock injects a custom clock primarily for tests.
func WithTierClock(now func() time.Time) TierOption {
	return func(cfg *tierConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// NewTier composes stores in lookup order. Nil stores are skipped; a disabled tier or an
// empty chain is backed by a single NoopStore.
func NewTier[V any](stores []Store, opts ...TierOption) *Tier[V] {
	cfg := tierConfig{enabled: true, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	chain := make([]Store, 0, len(stores))
	backed := false
	for _, s := range stores {
		if s == nil {
			continue
		}
		if _, noop := s.(NoopStore); !noop {
			backed = true
		}
		chain = append(chain, s)
	}

	enabled := cfg.enabled && backed
	if !enabled {
		chain = []Store{NoopStore{}}
	}

	t := &Tier[V]{
		stores:  chain,
		enabled: enabled,
		logger:  cfg.logger,
		now:     cfg.now,
		tracer:  otel.Tracer(metricNamespace),
	}

	counter, err := otel.GetMeterProvider().Meter(metricNamespace).Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache lookups by store and outcome"),
	)
	if err != nil {
		t.logger.Warn("cache: unable to register lookup metric", zap.Error(err))
	} else {
		t.lookups = counter
		t.counting = true
	}
	return t
}

// Enabled reports whether the tier is switched on with at least one real store.
func (t *Tier[V]) Enabled() bool {
	return t != nil && t.enabled
}

// Stores returns the chain in lookup order.
func (t *Tier[V]) Stores() []Store {
	if t == nil {
		return nil
	}
	out := make([]Store, len(t.stores))
	copy(out, t.stores)
	return out
}

// Get returns the first hit in chain order. Hits from later stores are copied into the
// earlier ones with their remaining lifetime.
func (t *Tier[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if t == nil {
		return zero, false
	}
	ctx, span := t.tracer.Start(ctx, "cache.Get", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	for i, store := range t.stores {
		entry, ok, err := store.Get(ctx, key)
		if err != nil {
			t.logger.Warn("cache store get failed", zap.String("store", store.Name()), zap.String("key", key), zap.Error(err))
			t.count(ctx, store, "error")
			continue
		}
		if !ok {
			t.count(ctx, store, "miss")
			continue
		}

		var value V
		if err := json.Unmarshal(entry.Value, &value); err != nil {
			t.logger.Warn("cache entry undecodable", zap.String("store", store.Name()), zap.String("key", key), zap.Error(err))
			t.count(ctx, store, "error")
			continue
		}
		t.count(ctx, store, "hit")
		span.SetAttributes(attribute.String("cache.store", store.Name()))

		if i > 0 {
			ttl := entry.Remaining(t.now())
			for _, earlier := range t.stores[:i] {
				if err := earlier.Set(ctx, key, entry.Value, ttl); err != nil {
					t.logger.Warn("cache promotion failed", zap.String("store", earlier.Name()), zap.String("key", key), zap.Error(err))
				}
			}
		}
		return value, true
	}
	return zero, false
}

// Set writes value to every store. A failing store does not prevent writes to the others.
func (t *Tier[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	if t == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		t.logger.Warn("cache value unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	for _, store := range t.stores {
		if err := store.Set(ctx, key, payload, ttl); err != nil {
			t.logger.Warn("cache store set failed", zap.String("store", store.Name()), zap.String("key", key), zap.Error(err))
		}
	}
}

// InvalidatePrefix removes every key beginning with prefix from each store and returns
// the total number of keys removed.
func (t *Tier[V]) InvalidatePrefix(ctx context.Context, prefix string) int {
	if t == nil {
		return 0
	}
	total := 0
	for _, store := range t.stores {
		n, err := store.DeletePrefix(ctx, prefix)
		total += n
		if err != nil {
			t.logger.Warn("cache store invalidate failed", zap.String("store", store.Name()), zap.String("prefix", prefix), zap.Error(err))
		}
	}
	return total
}

func (t *Tier[V]) count(ctx context.Context, store Store, outcome string) {
	if !t.counting {
		return
	}
	t.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store.Name()),
		attribute.String("outcome", outcome),
	))
}
