package tenant

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/adsync/internal/metrics"
)

// Static defaults.  Override through NewCache arguments.
const (
	IdleTTL       = 5 * time.Minute
	MaxAge        = time.Minute
	MaxEntries    = 1000
	EvictInterval = time.Minute
)

// Loader fetches one active tenant.  *Store satisfies it.
type Loader interface {
	ByID(ctx context.Context, id uint64) (*Record, error)
}

type entry struct {
	rec      *Record
	loadedAt int64 // UnixNano
	lastSeen int64 // UnixNano
}

// Cache lazily loads tenant records for the API's tenant check, stores
// them in a sync.Map, and evicts them on idle TTL or LRU pressure.  A
// record older than maxAge is reloaded on its next Get, so a suspension
// reaches the API within maxAge even for a tenant in constant use.
type Cache struct {
	loader     Loader
	log        *zap.SugaredLogger
	sfg        singleflight.Group
	m          sync.Map
	idleTTL    time.Duration
	maxAge     time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewCache constructs a Cache and starts the background evictor.  maxAge
// <= 0 takes MaxAge.
func NewCache(loader Loader, idleTTL, maxAge time.Duration, maxEntries int, log *zap.SugaredLogger) *Cache {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if maxAge <= 0 {
		maxAge = MaxAge
	}
	c := &Cache{
		loader:     loader,
		log:        log,
		idleTTL:    idleTTL,
		maxAge:     maxAge,
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
		Now:        time.Now,
	}
	go c.evictLoop(EvictInterval)
	return c
}

// Close stops the evictor.
func (c *Cache) Close() { c.stopOnce.Do(func() { close(c.stop) }) }

// Get returns the active tenant id, loading it on demand.
func (c *Cache) Get(ctx context.Context, id uint64) (*Record, error) {
	if rec, ok := c.lookup(id); ok {
		return rec, nil
	}

	v, err, _ := c.sfg.Do(strconv.FormatUint(id, 10), func() (any, error) {
		// Double-check after singleflight barrier.
		if rec, ok := c.lookup(id); ok {
			return rec, nil
		}
		rec, err := c.loader.ByID(ctx, id)
		if err != nil {
			metrics.TenantLoadErrorsTotal.Inc()
			return nil, err
		}
		now := c.Now().UnixNano()
		c.m.Store(id, &entry{rec: rec, loadedAt: now, lastSeen: now})
		metrics.TenantLoadTotal.Inc()
		metrics.CachedTenants.Inc()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// lookup returns a cached record that is still within maxAge.  An expired
// record is dropped so the caller reloads it.
func (c *Cache) lookup(id uint64) (*Record, bool) {
	v, ok := c.m.Load(id)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	now := c.Now().UnixNano()
	if time.Duration(now-ent.loadedAt) > c.maxAge {
		if c.m.CompareAndDelete(id, v) {
			metrics.CachedTenants.Dec()
		}
		return nil, false
	}
	atomic.StoreInt64(&ent.lastSeen, now)
	return ent.rec, true
}
