package retrieval

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// resolution is a cached outcome of course-name resolution. Misses are cached
// too so a model retrying the same bad name does not re-embed it.
type resolution struct {
	title string
	found bool
}

type resolveCacheEntry struct {
	res       resolution
	expiresAt time.Time
}

type resolveCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	store map[string]resolveCacheEntry
	sf    singleflight.Group // deduplicate concurrent resolutions of the same reference
}

func newResolveCache(ttl time.Duration) *resolveCache {
	return &resolveCache{ttl: ttl, store: make(map[string]resolveCacheEntry)}
}

func (c *resolveCache) get(key string) (resolution, bool) {
	if c.ttl <= 0 {
		return resolution{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok || time.Now().After(e.expiresAt) {
		return resolution{}, false
	}
	return e.res, true
}

func (c *resolveCache) set(key string, res resolution) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = resolveCacheEntry{res: res, expiresAt: time.Now().Add(c.ttl)}
}

func (c *resolveCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]resolveCacheEntry)
}
