// cache.go - In-memory cache for per-user analytics

package storage

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// UserAnalytics is the dashboard summary for one user.
type UserAnalytics struct {
	Counts   StatusCounts
	Recent   []BillRecord
	LoadedAt time.Time
}

// AnalyticsCache keeps UserAnalytics per user for a short TTL. Loads run
// outside the lock and are shared between concurrent callers for the same
// user.
type AnalyticsCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]*UserAnalytics
	gens    map[string]uint64
	epoch   uint64
	loads   singleflight.Group
	now     func() time.Time
}

func NewAnalyticsCache(ttl time.Duration) *AnalyticsCache {
	return &AnalyticsCache{
		ttl:     ttl,
		entries: make(map[string]*UserAnalytics),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

// GetOrLoad returns the cached analytics for userID or calls load.
// A zero TTL disables caching. A load that overlaps Invalidate or Clear is
// returned to its callers but not cached.
func (c *AnalyticsCache) GetOrLoad(userID string, load func() (*UserAnalytics, error)) (*UserAnalytics, error) {
	if c.ttl <= 0 {
		return load()
	}

	c.mu.RLock()
	entry, exists := c.entries[userID]
	epoch, gen := c.epoch, c.gens[userID]
	c.mu.RUnlock()

	if exists && c.now().Sub(entry.LoadedAt) < c.ttl {
		return entry, nil
	}

	key := fmt.Sprintf("%d/%d/%s", epoch, gen, userID)
	v, err, _ := c.loads.Do(key, func() (interface{}, error) {
		fresh, err := load()
		if err != nil {
			return nil, err
		}
		fresh.LoadedAt = c.now()

		c.mu.Lock()
		if c.epoch == epoch && c.gens[userID] == gen {
			c.entries[userID] = fresh
		}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserAnalytics), nil
}

// Invalidate removes the cached analytics for one user.
func (c *AnalyticsCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.gens[userID]++
}

// Clear removes all cached analytics.
func (c *AnalyticsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*UserAnalytics)
	c.gens = make(map[string]uint64)
	c.epoch++
}
