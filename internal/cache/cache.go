// Package cache implements the analysis cache: an in-memory key/value
// store keyed by {kind, sha256(content)} with per-entry TTL, periodic
// sweep eviction, and concurrent-safe reads. Concurrent
// identical-hash lookups collapse into a single computation via
// golang.org/x/sync/singleflight; an optional Redis backing store
// (manager.go) persists entries durably when attached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/forgecode/orchestra/internal/metrics"
)

// Kind distinguishes the two cached artifact types: parsed syntax
// trees and higher-level semantic analyses.
type Kind string

const (
	KindAST      Kind = "ast"
	KindAnalysis Kind = "analysis"
)

// defaultTTL is the per-entry default when the caller doesn't specify
// one.
const defaultTTL = time.Hour

// sweepInterval is how often expired entries are purged
// "Periodic (60 s) sweep").
const sweepInterval = 60 * time.Second

// Key identifies a cache entry: a kind plus
// the hex SHA-256 digest of the content analyzed.
type Key struct {
	Kind Kind
	Hash string
}

// KeyFor computes the Key for kind and content.
func KeyFor(kind Kind, content string) Key {
	sum := sha256.Sum256([]byte(content))
	return Key{Kind: kind, Hash: hex.EncodeToString(sum[:])}
}

type entry struct {
	value       any
	insertedAt  time.Time
	ttl         time.Duration
	accessCount int64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

// Stats reports cumulative cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

// Cache is the in-memory Analysis Cache actor. It is safe for
// concurrent use: lookups share a read lock for the map access and
// take the write lock briefly to bump access and hit/miss counters;
// inserts/evictions serialize through the same mutex.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	group   singleflight.Group
	metrics *metrics.Collector
	backing *RedisStore
	logger  *zap.Logger

	hits      int64
	misses    int64
	evictions int64

	stopSweep chan struct{}
}

// New creates an empty Cache and starts its background TTL sweep.
// metrics may be nil to disable Prometheus export.
func New(m *metrics.Collector, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		entries:   make(map[Key]*entry),
		metrics:   m,
		logger:    logger,
		stopSweep: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// WithBacking attaches a durable store: inserts write through to it
// and GetOrComputeDecoded consults it before recomputing.
func (c *Cache) WithBacking(b *RedisStore) *Cache {
	c.backing = b
	return c
}

// Close stops the background sweep goroutine. The backing store, if
// any, stays open; its creator owns its lifecycle.
func (c *Cache) Close() {
	close(c.stopSweep)
}

// Get looks up key, reporting a hit/miss and bumping the entry's
// access count on hit.
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		c.recordMiss(key.Kind)
		return nil, false
	}

	c.mu.Lock()
	e.accessCount++
	c.mu.Unlock()

	c.recordHit(key.Kind)
	return e.value, true
}

// Set inserts or overwrites key's value with the given ttl (0 uses
// defaultTTL).
func (c *Cache) Set(key Key, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = &entry{value: value, insertedAt: time.Now(), ttl: ttl}
	n := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheEntries(n)
	}
}

// GetOrCompute returns the cached value for key if present and live,
// otherwise computes it via compute, collapsing concurrent callers
// for the same key into a single computation.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, compute func(ctx context.Context) (any, error)) (any, error) {
	return c.GetOrComputeDecoded(ctx, key, ttl, nil, nil, compute)
}

// GetOrComputeDecoded is GetOrCompute with an optional durable-store
// round-trip: on a memory miss with a backing store attached, decode
// is given the stored bytes to reconstruct the value, and encode
// serializes freshly computed values for write-through. Either hook
// may be nil to skip that direction.
func (c *Cache) GetOrComputeDecoded(ctx context.Context, key Key, ttl time.Duration,
	decode func([]byte) (any, error), encode func(any) ([]byte, error),
	compute func(ctx context.Context) (any, error)) (any, error) {

	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key.Hash+string(key.Kind), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		if c.backing != nil && decode != nil {
			if raw, err := c.backing.GetRaw(ctx, key); err == nil {
				if value, derr := decode(raw); derr == nil {
					c.Set(key, value, ttl)
					return value, nil
				}
			}
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, ttl)
		if c.backing != nil && encode != nil {
			if raw, eerr := encode(value); eerr == nil {
				if serr := c.backing.SetRaw(ctx, key, raw, ttl); serr != nil {
					c.logger.Debug("write-through to backing failed", zap.Error(serr))
				}
			}
		}
		return value, nil
	})
	return v, err
}

// StatsSnapshot returns cumulative counters.
func (c *Cache) StatsSnapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

func (c *Cache) recordHit(kind Kind) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCacheHit(string(kind))
	}
}

func (c *Cache) recordMiss(kind Kind) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(string(kind))
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	var evicted []Kind

	c.mu.Lock()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			c.evictions++
			evicted = append(evicted, k.Kind)
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		for _, kind := range evicted {
			c.metrics.RecordCacheEviction(string(kind))
		}
		c.metrics.SetCacheEntries(n)
	}
	if len(evicted) > 0 {
		c.logger.Debug("cache sweep evicted expired entries", zap.Int("count", len(evicted)))
	}
}
