// internal/platform/registry.go
//
// Adapter contract and lookup table.
//
// Context
// -------
// Each platform package (google, meta, tiktok, linkedin) provides one type
// that satisfies Adapter.  cmd/adsync builds a Registry at boot and hands it
// to the token manager and the orchestrator.  Adding a platform means adding
// one implementation and one Register call; no dispatch switch elsewhere.
//
// Notes
// -----
//   - Adapters return upstream failures as *syncerr.Error with KindUpstream
//     so the orchestrator can classify them.
//   - RefreshToken returns syncerr.NewRefreshUnsupported for platforms
//     without a refresh protocol.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Adapter is the capability set the sync engine needs from one platform.
type Adapter interface {
	Platform() Platform
	FetchCampaigns(ctx context.Context, acct Account) ([]RawRecord, error)
	FetchMetrics(ctx context.Context, acct Account, window DateRange) ([]RawRecord, error)
	RefreshToken(ctx context.Context, req RefreshRequest) (*Token, error)
}

// Registry maps platform keys to adapters.  Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Platform]Adapter
}

// NewRegistry returns a registry pre-loaded with adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Platform().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Platform()] = a
	r.mu.Unlock()
}

// Lookup returns the adapter for p.
func (r *Registry) Lookup(p Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", p)
	}
	return a, nil
}

// Platforms lists registered keys in sorted order.
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
