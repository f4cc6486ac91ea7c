package anchor

import (
	"context"
	"sync"
	"time"

	"fhiraudit/internal/fhir"
)

type cacheEntry struct {
	ref       fhir.Reference
	expiresAt time.Time
}

// MemoryCache keeps anchors in process for ttl. A zero ttl caches nothing.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Kind]cacheEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[Kind]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, kind Kind) (fhir.Reference, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[kind]
	if !ok || !c.now().Before(entry.expiresAt) {
		return fhir.Reference{}, false, nil
	}
	return entry.ref, true, nil
}

func (c *MemoryCache) Set(_ context.Context, kind Kind, ref fhir.Reference) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[kind] = cacheEntry{ref: ref, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Kind]cacheEntry)
	return nil
}
