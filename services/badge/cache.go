package badge

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	catalogHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "badge_catalog_cache_hits_total"})
	catalogMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "badge_catalog_cache_miss_total"})
)

func init() {
	prometheus.MustRegister(catalogHits, catalogMiss)
}

// compiledBadge is an active definition with its criteria already compiled,
// so the hot award path never re-parses catalog JSON.
type compiledBadge struct {
	def        *Definition
	predicates []predicate
	// invalid marks definitions whose criteria could not be compiled;
	// they stay in the catalog but never qualify
	invalid bool
}

// CatalogCache holds the compiled active badge set. The catalog changes
// rarely; a short TTL plus singleflight keeps reload storms off the database.
type CatalogCache struct {
	mu       sync.RWMutex
	items    []*compiledBadge
	loadedAt time.Time
	ttl      time.Duration
	group    singleflight.Group
}

func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{ttl: ttl}
}

func (c *CatalogCache) get() ([]*compiledBadge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.items == nil || (c.ttl > 0 && time.Since(c.loadedAt) > c.ttl) {
		return nil, false
	}
	return c.items, true
}

func (c *CatalogCache) set(items []*compiledBadge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.loadedAt = time.Now()
}

// Load returns the cached compiled catalog, invoking loader at most once
// per expiry across concurrent callers.
func (c *CatalogCache) Load(loader func() ([]*compiledBadge, error)) ([]*compiledBadge, error) {
	if items, ok := c.get(); ok {
		catalogHits.Inc()
		return items, nil
	}
	catalogMiss.Inc()

	result, err, _ := c.group.Do("catalog", func() (any, error) {
		if items, ok := c.get(); ok {
			return items, nil
		}
		items, err := loader()
		if err != nil {
			return nil, err
		}
		c.set(items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]*compiledBadge), nil
}

// Invalidate forces the next Load to hit the database.
func (c *CatalogCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}
