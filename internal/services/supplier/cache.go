package supplier

import (
	"sync"
	"time"

	"pricesync/internal/models"
)

// PriceCache is an in-process TTL cache of supplier lookups, keyed by supplier
// id. Failed lookups are cached as nil entries so a consistently-failing id is
// not re-fetched within the same run. State is per-instance, not global, so
// independent configurations and tests do not leak entries into each other.
type PriceCache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	product *models.SupplierProduct
	expires time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		items: make(map[string]cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the cached product and whether an unexpired entry exists.
// A (nil, true) result is a remembered failure.
func (c *PriceCache) Get(id string) (*models.SupplierProduct, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.items[id]
	if !found || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.product, true
}

// Put stores a lookup result. A nil product records a failure.
func (c *PriceCache) Put(id string, product *models.SupplierProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = cacheEntry{
		product: product,
		expires: c.now().Add(c.ttl),
	}
}

func (c *PriceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
