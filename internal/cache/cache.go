// Package cache memoizes demand series per (target, timeframe, price snapshot).
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/synth"
)

// Key identifies one cached series.
type Key struct {
	TargetType     string
	TargetID       int64
	Timeframe      synth.Timeframe
	PriceSignature string
}

// KeyFor builds the cache key for target at tf using its current prices.
func KeyFor(t model.Target, tf synth.Timeframe) Key {
	kind := t.Type
	if kind == "" {
		kind = model.TargetProduct
	}
	return Key{
		TargetType:     kind,
		TargetID:       t.ID,
		Timeframe:      tf,
		PriceSignature: t.PriceSignature(),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", k.TargetType, k.TargetID, k.Timeframe, k.PriceSignature)
}

// Tier is an optional shared second level consulted on local misses.
type Tier interface {
	Load(ctx context.Context, key Key) ([]model.DemandPoint, bool, error)
	Store(ctx context.Context, key Key, series []model.DemandPoint) error
	Delete(ctx context.Context, key Key) error
	Purge(ctx context.Context, targetType string, targetID int64) error
}

// ComputeFunc produces a series on a cache miss.
type ComputeFunc func(ctx context.Context) ([]model.DemandPoint, error)

// Cache is an explicit, session-scoped series cache. Entries are written
// once per key; only invalidation makes room for a new series. Stored
// slices are shared with readers and must not be mutated.
type Cache struct {
	mu         sync.RWMutex
	entries    map[Key][]model.DemandPoint
	gens       map[Key]uint64
	targetGens map[string]uint64

	group   singleflight.Group
	tier    Tier
	metrics *Metrics
	logger  zerolog.Logger
}

// Option customises a Cache.
type Option func(*Cache)

// WithTier attaches a shared second level.
func WithTier(t Tier) Option {
	return func(c *Cache) { c.tier = t }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New constructs an empty cache.
func New(logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[Key][]model.DemandPoint),
		gens:       make(map[Key]uint64),
		targetGens: make(map[string]uint64),
		logger:     logger.With().Str("component", "series_cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored series for key.
func (c *Cache) Get(key Key) ([]model.DemandPoint, bool) {
	c.mu.RLock()
	series, ok := c.entries[key]
	c.mu.RUnlock()
	return series, ok
}

// Put stores series under key unless a series is already present.
func (c *Cache) Put(key Key, series []model.DemandPoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return false
	}
	c.entries[key] = series
	return true
}

// Len reports the number of cached series.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate drops key so the next lookup recomputes it.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key.String())
	c.metrics.invalidated(1)

	if c.tier != nil {
		if err := c.tier.Delete(ctx, key); err != nil {
			return fmt.Errorf("invalidate shared tier: %w", err)
		}
	}
	return nil
}

// InvalidateTarget purges every timeframe and price snapshot of one target.
func (c *Cache) InvalidateTarget(ctx context.Context, targetType string, targetID int64) (int, error) {
	if targetType == "" {
		targetType = model.TargetProduct
	}
	c.mu.Lock()
	purged := 0
	for key := range c.entries {
		if key.TargetType == targetType && key.TargetID == targetID {
			delete(c.entries, key)
			c.gens[key]++
			c.group.Forget(key.String())
			purged++
		}
	}
	c.targetGens[targetRef(targetType, targetID)]++
	c.mu.Unlock()
	c.metrics.invalidated(purged)

	c.logger.Debug().Str("target_type", targetType).Int64("target_id", targetID).Int("purged", purged).Msg("target purged from cache")

	if c.tier != nil {
		if err := c.tier.Purge(ctx, targetType, targetID); err != nil {
			return purged, fmt.Errorf("purge shared tier: %w", err)
		}
	}
	return purged, nil
}

// GetOrCompute returns the cached series for key, computing and storing it
// on a miss. Concurrent misses for one key share a single computation.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]model.DemandPoint, error) {
	if series, ok := c.Get(key); ok {
		c.metrics.lookup(resultHit)
		return series, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if series, ok := c.Get(key); ok {
			c.metrics.lookup(resultHit)
			return series, nil
		}

		gen := c.snapshot(key)

		if series, ok := c.loadTier(ctx, key); ok {
			c.metrics.lookup(resultTierHit)
			return c.storeIfCurrent(key, gen, series), nil
		}

		c.metrics.lookup(resultMiss)
		series, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		stored := c.storeIfCurrent(key, gen, series)
		if c.tier != nil {
			if err := c.tier.Store(ctx, key, stored); err != nil {
				c.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to write shared tier")
			}
		}
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.DemandPoint), nil
}

func (c *Cache) loadTier(ctx context.Context, key Key) ([]model.DemandPoint, bool) {
	if c.tier == nil {
		return nil, false
	}
	series, ok, err := c.tier.Load(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("shared tier lookup failed")
		return nil, false
	}
	return series, ok
}

type generation struct {
	key    uint64
	target uint64
}

func targetRef(targetType string, targetID int64) string {
	return fmt.Sprintf("%s:%d", targetType, targetID)
}

func (c *Cache) snapshot(key Key) generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return generation{key: c.gens[key], target: c.targetGens[targetRef(key.TargetType, key.TargetID)]}
}

// storeIfCurrent writes series unless the key or its target was invalidated
// since gen was observed; the first stored series wins.
func (c *Cache) storeIfCurrent(key Key, gen generation, series []model.DemandPoint) []model.DemandPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	current := generation{key: c.gens[key], target: c.targetGens[targetRef(key.TargetType, key.TargetID)]}
	if current != gen {
		return series
	}
	c.entries[key] = series
	return series
}
