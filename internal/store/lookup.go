package store

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/shopdesk/model"
)

// ProductCache is a ProductLookup that remembers resolved products for a
// while. Customer detail views resolve the same favourites over and over;
// failed lookups are not cached.
type ProductCache struct {
	next       ProductLookup
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedProduct
}

type cachedProduct struct {
	product   *model.Product
	expiresAt time.Time
}

// NewProductCache wraps next. A non-positive ttl means five minutes and a
// non-positive maxEntries means 1000.
func NewProductCache(next ProductLookup, ttl time.Duration, maxEntries int) *ProductCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &ProductCache{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cachedProduct),
	}
}

// Lookup implements ProductLookup.
func (c *ProductCache) Lookup(ctx context.Context, id string) (*model.Product, error) {
	if p, ok := c.get(id); ok {
		return p, nil
	}
	p, err := c.next.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(id, p)
	return p, nil
}

// Len returns the number of cached entries, expired ones included.
func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ProductCache) get(id string) (*model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.product, true
}

func (c *ProductCache) put(id string, p *model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	// Still full: make room by dropping an arbitrary entry.
	if len(c.entries) >= c.maxEntries {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[id] = cachedProduct{product: p, expiresAt: now.Add(c.ttl)}
}
