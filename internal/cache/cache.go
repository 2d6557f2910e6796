// Package cache memoizes income projections keyed by input fingerprints and
// mirrors them to a durable store.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finwatch/portfolio-engine/internal/model"
	"github.com/finwatch/portfolio-engine/utils"
	"golang.org/x/sync/singleflight"
)

// Store is the durable backing for cache entries. Get reports presence with
// its second return; absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) (model.CacheEntry, bool, error)
	Put(ctx context.Context, key string, entry model.CacheEntry) error
}

// ComputeFn is an alias so consumer-side interfaces can spell the signature
// without importing this package.
type ComputeFn = func(ctx context.Context) (model.CacheEntry, error)

type Cache struct {
	store   Store
	mu      sync.RWMutex
	entries map[string]model.CacheEntry
	group   singleflight.Group
}

func New(store Store) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[string]model.CacheEntry),
	}
}

type lookup struct {
	entry model.CacheEntry
	hit   bool
}

// GetOrCompute returns the entry for key, computing it at most once per
// fingerprint. The bool return reports a cache hit; a stored zero-valued
// entry is a hit like any other. Lookup order: in-memory map, durable store,
// compute. Concurrent calls for the same key and fingerprint coalesce onto a
// single in-flight computation.
//
// An empty fingerprint means the inputs could not be hashed; the entry is
// then treated as always stale and neither memoized nor persisted.
func (c *Cache) GetOrCompute(ctx context.Context, key, fp string, compute ComputeFn) (model.CacheEntry, bool, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if fp == "" {
		slog.Warn("cache: empty fingerprint, computing without caching", slog.String("rqID", rqID), slog.String("key", key))
		entry, err := compute(ctx)
		return entry, false, err
	}

	if entry, ok := c.lookupMemory(key, fp); ok {
		return entry, true, nil
	}

	v, err, _ := c.group.Do(key+"\x00"+fp, func() (any, error) {
		// A racing caller may have filled the map while we queued.
		if entry, ok := c.lookupMemory(key, fp); ok {
			return lookup{entry: entry, hit: true}, nil
		}

		if entry, ok := c.lookupStore(ctx, key, fp); ok {
			c.memoize(key, entry)
			return lookup{entry: entry, hit: true}, nil
		}

		entry, err := compute(ctx)
		if err != nil {
			return lookup{}, err
		}
		entry.Fingerprint = fp
		if entry.ComputedAt.IsZero() {
			entry.ComputedAt = time.Now().UTC()
		}
		c.memoize(key, entry)

		// Persistence must not block or fail the caller; a lost write only
		// costs a recomputation after the next restart.
		go c.persist(context.WithoutCancel(ctx), key, entry)

		return lookup{entry: entry, hit: false}, nil
	})
	if err != nil {
		return model.CacheEntry{}, false, err
	}

	res := v.(lookup)
	return res.entry, res.hit, nil
}

// InvalidateIfChanged drops the in-memory entry when its fingerprint no
// longer matches. It reports whether an entry was dropped.
func (c *Cache) InvalidateIfChanged(key, newFp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.Fingerprint == newFp {
		return false
	}
	delete(c.entries, key)
	return true
}

// WarmUp seeds the in-memory map with persisted entries, keeping whatever is
// already present.
func (c *Cache) WarmUp(entries map[string]model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range entries {
		if _, ok := c.entries[key]; !ok {
			c.entries[key] = entry
		}
	}
}

// Snapshot returns a copy of the in-memory entries for bulk persistence.
func (c *Cache) Snapshot() map[string]model.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]model.CacheEntry, len(c.entries))
	for key, entry := range c.entries {
		snapshot[key] = entry
	}
	return snapshot
}

func (c *Cache) lookupMemory(key, fp string) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || entry.Fingerprint != fp {
		return model.CacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) lookupStore(ctx context.Context, key, fp string) (model.CacheEntry, bool) {
	if c.store == nil {
		return model.CacheEntry{}, false
	}
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache: durable store read failed",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("key", key), slog.String("err", err.Error()))
		return model.CacheEntry{}, false
	}
	if !found || entry.Fingerprint != fp {
		return model.CacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) memoize(key string, entry model.CacheEntry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *Cache) persist(ctx context.Context, key string, entry model.CacheEntry) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(ctx, key, entry); err != nil {
		slog.Warn("cache: durable store write failed",
			slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("key", key), slog.String("err", err.Error()))
	}
}
