package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/metrics"
	"github.com/yanizio/adsync/internal/platform"
)

// ErrConnectionNotFound is returned by SyncConnectionByID for an unknown id
// or a connection owned by another tenant.
var ErrConnectionNotFound = errors.New("orchestrator: connection not found")

// ErrConnectionBusy is returned by SyncConnectionByID when another run
// holds the connection.
var ErrConnectionBusy = errors.New("orchestrator: connection sync already in progress")

// ErrInvalidOptions is returned for an unsupported platform filter.
var ErrInvalidOptions = errors.New("orchestrator: invalid options")

// SyncTenant syncs every active connection of tenantID matching
// opts.Platform.  The error is non-nil only when the connection list itself
// could not be produced.
func (o *Orchestrator) SyncTenant(ctx context.Context, tenantID uint64, opts Options) ([]Result, error) {
	if err := normalizeOptions(&opts); err != nil {
		return nil, err
	}
	conns, err := o.conns.ListActive(ctx, tenantID, opts.Platform)
	if err != nil {
		return nil, fmt.Errorf("list connections of tenant %d: %w", tenantID, err)
	}
	o.log.Infow("tenant sync started", "tenant", tenantID, "connections", len(conns), "platform", opts.Platform)
	return o.fanOut(ctx, conns, opts), nil
}

// SyncAllTenants syncs every active tenant.  A tenant whose connections
// cannot be listed is logged and skipped.  Connections of all tenants share
// the per-platform pools.
func (o *Orchestrator) SyncAllTenants(ctx context.Context, opts Options) ([]Result, error) {
	if err := normalizeOptions(&opts); err != nil {
		return nil, err
	}
	ids, err := o.tenants.ActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	var all []connection.Connection
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		conns, err := o.conns.ListActive(ctx, id, opts.Platform)
		if err != nil {
			metrics.TenantSkipsTotal.Inc()
			o.log.Errorw("skipping tenant, cannot list connections", "tenant", id, "err", err)
			continue
		}
		all = append(all, conns...)
	}

	o.log.Infow("all-tenant sync started", "tenants", len(ids), "connections", len(all))
	results := o.fanOut(ctx, all, opts)

	failed, skipped := 0, 0
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case !r.Success:
			failed++
		}
	}
	o.log.Infow("all-tenant sync finished", "connections", len(results), "failed", failed, "skipped", skipped)
	return results, nil
}

// SyncConnectionByID syncs one connection of tenantID.
func (o *Orchestrator) SyncConnectionByID(ctx context.Context, tenantID, id uint64, opts Options) (Result, error) {
	if err := normalizeOptions(&opts); err != nil {
		return Result{}, err
	}
	conn, err := o.conns.Get(ctx, id)
	switch {
	case errors.Is(err, connection.ErrNotFound):
		return Result{}, ErrConnectionNotFound
	case err != nil:
		return Result{}, err
	case conn.TenantID != tenantID:
		return Result{}, ErrConnectionNotFound
	}
	res := o.SyncConnection(ctx, *conn, opts)
	if res.Skipped {
		return res, ErrConnectionBusy
	}
	return res, nil
}

// fanOut runs conns through one bounded pool per platform.  Results keep
// the order of conns.
func (o *Orchestrator) fanOut(ctx context.Context, conns []connection.Connection, opts Options) []Result {
	results := make([]Result, len(conns))

	byPlatform := make(map[string][]int)
	for i, c := range conns {
		byPlatform[c.Platform] = append(byPlatform[c.Platform], i)
	}
	plats := make([]string, 0, len(byPlatform))
	for p := range byPlatform {
		plats = append(plats, p)
	}
	sort.Strings(plats)

	var wg sync.WaitGroup
	for _, p := range plats {
		idxs := byPlatform[p]
		wg.Add(1)
		go func() {
			defer wg.Done()
			var g errgroup.Group
			g.SetLimit(o.cfg.WorkersPerPlatform)
			for _, i := range idxs {
				g.Go(func() error {
					results[i] = o.SyncConnection(ctx, conns[i], opts)
					return nil
				})
			}
			_ = g.Wait()
		}()
	}
	wg.Wait()
	return results
}

// normalizeOptions canonicalizes the platform filter.
func normalizeOptions(opts *Options) error {
	if opts.Platform == "" {
		return nil
	}
	p, err := platform.Parse(opts.Platform)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	opts.Platform = string(p)
	return nil
}
