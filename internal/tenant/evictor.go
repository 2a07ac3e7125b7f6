// evictor.go houses the eviction loop for Cache.  Every interval it scans
// the map and removes:
//
//   - tenants idle longer than idleTTL
//   - least-recently-used tenants when map size exceeds maxEntries
//
// Each eviction event is logged and updates Prometheus counters.
package tenant

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/yanizio/adsync/internal/metrics"
)

func (c *Cache) evictLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.evict(time.Now())
		}
	}
}

func (c *Cache) evict(at time.Time) {
	now := at.UnixNano()
	var count int

	// ----------------------------------------------------------------
	// Idle eviction pass
	// ----------------------------------------------------------------
	c.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
		if idle > c.idleTTL {
			c.m.Delete(key)
			c.log.Debugw("tenant evicted", "tenant", key, "idle", idle.Truncate(time.Second))
			metrics.TenantEvictTotal.Inc()
			metrics.CachedTenants.Dec()
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU eviction pass
	// ----------------------------------------------------------------
	if c.maxEntries > 0 && count > c.maxEntries {
		type kv struct {
			key uint64
			at  int64
		}
		var all []kv
		c.m.Range(func(key, value any) bool {
			all = append(all, kv{key: key.(uint64), at: atomic.LoadInt64(&value.(*entry).lastSeen)})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-c.maxEntries; i++ {
			if _, ok := c.m.LoadAndDelete(all[i].key); ok {
				c.log.Debugw("tenant evicted (LRU pressure)", "tenant", all[i].key)
				metrics.TenantEvictTotal.Inc()
				metrics.CachedTenants.Dec()
			}
		}
	}
}
