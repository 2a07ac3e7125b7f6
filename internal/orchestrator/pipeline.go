package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/metrics"
	"github.com/yanizio/adsync/internal/normalize"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
)

// counts is what a successful pipeline produced.
type counts struct {
	campaigns int
	metrics   int
	dropped   int
}

// SyncConnection runs the full pipeline for conn.  It always returns a
// Result; the connection's status row reflects the outcome.  A connection
// another run holds comes back with Skipped set and its row untouched.
func (o *Orchestrator) SyncConnection(ctx context.Context, conn connection.Connection, opts Options) Result {
	start := o.Now()
	res := Result{
		RunID:        uuid.NewString(),
		TenantID:     conn.TenantID,
		ConnectionID: conn.ID,
		Platform:     conn.Platform,
		AccountID:    conn.AccountID,
		StartedAt:    start.UTC(),
	}
	log := o.log.With("run_id", res.RunID, "tenant", conn.TenantID, "connection", conn.ID, "platform", conn.Platform)

	metrics.SyncsInFlight.WithLabelValues(conn.Platform).Inc()
	defer metrics.SyncsInFlight.WithLabelValues(conn.Platform).Dec()

	if err := o.claim(ctx, conn.ID); err != nil {
		res.Duration = o.Now().Sub(start).Round(time.Millisecond).String()
		res.Errors = []string{err.Error()}
		if errors.Is(err, connection.ErrBusy) {
			res.Skipped = true
			metrics.SyncRunsTotal.WithLabelValues(conn.Platform, "skipped").Inc()
			log.Infow("connection already syncing, skipped")
			return res
		}
		res.ErrorKind = syncerr.KindPersistence
		metrics.SyncRunsTotal.WithLabelValues(conn.Platform, "failure").Inc()
		metrics.SyncErrorsTotal.WithLabelValues(conn.Platform, string(res.ErrorKind)).Inc()
		log.Errorw("connection claim failed", "err", err)
		return res
	}

	pctx, cancel := context.WithTimeout(ctx, o.cfg.ConnectionTimeout)
	c, err := o.guarded(pctx, &conn, opts)
	if err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !syncerr.IsTimeout(err) {
		err = syncerr.NewTimeout(conn.Platform, "sync_connection",
			fmt.Errorf("connection pipeline exceeded %s: %w", o.cfg.ConnectionTimeout, err))
	}
	cancel()

	res.CampaignsSynced, res.MetricsSynced, res.MetricsDropped = c.campaigns, c.metrics, c.dropped
	elapsed := o.Now().Sub(start)
	res.Duration = elapsed.Round(time.Millisecond).String()
	metrics.SyncDuration.WithLabelValues(conn.Platform).Observe(elapsed.Seconds())

	if err != nil {
		res.ErrorKind = syncerr.KindOf(err)
		res.Errors = []string{err.Error()}
		o.writeStatus(ctx, conn.ID, func(sctx context.Context) error {
			return o.conns.SetStatus(sctx, conn.ID, connection.StatusError, err.Error())
		})
		metrics.SyncRunsTotal.WithLabelValues(conn.Platform, "failure").Inc()
		metrics.SyncErrorsTotal.WithLabelValues(conn.Platform, string(res.ErrorKind)).Inc()
		log.Warnw("connection sync failed", "kind", res.ErrorKind, "reconnect", syncerr.ReconnectRequired(err), "err", err)
		return res
	}

	res.Success = true
	o.writeStatus(ctx, conn.ID, func(sctx context.Context) error {
		return o.conns.RecordSuccess(sctx, conn.ID, o.Now())
	})
	metrics.SyncRunsTotal.WithLabelValues(conn.Platform, "success").Inc()
	metrics.CampaignsSyncedTotal.WithLabelValues(conn.Platform).Add(float64(c.campaigns))
	metrics.MetricsRowsSyncedTotal.WithLabelValues(conn.Platform).Add(float64(c.metrics))
	metrics.MetricsRowsDroppedTotal.WithLabelValues(conn.Platform).Add(float64(c.dropped))
	log.Infow("connection synced",
		"campaigns", c.campaigns, "metrics", c.metrics, "dropped", c.dropped, "duration", res.Duration)
	return res
}

// guarded converts a panic inside the pipeline into an internal error.
func (o *Orchestrator) guarded(ctx context.Context, conn *connection.Connection, opts Options) (c counts, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("connection pipeline panic",
				"connection", conn.ID, "panic", r, "stack", string(debug.Stack()))
			err = syncerr.NewInternal(fmt.Sprintf("panic: %v", r))
		}
	}()
	return o.pipeline(ctx, conn, opts)
}

func (o *Orchestrator) pipeline(ctx context.Context, conn *connection.Connection, opts Options) (counts, error) {
	var c counts
	plat := platform.Platform(conn.Platform)

	app, err := o.apps.Get(ctx, conn.TenantID, plat)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return c, &syncerr.Error{Kind: syncerr.KindInternal, Platform: conn.Platform, Op: "load_oauth_app", Err: err}
	}
	if app != nil && !app.IsActive {
		return c, syncerr.NewConfiguration(conn.Platform, "oauth app is inactive")
	}
	var creds *platform.AppCredentials
	if app != nil {
		cr := app.Credentials()
		creds = &cr
	}

	// 1. token
	tok, err := o.tokens.EnsureValid(ctx, conn, creds, opts.ForceRefresh)
	if err != nil {
		return c, err
	}

	// 2. app
	if creds == nil {
		return c, syncerr.NewConfiguration(conn.Platform, "no oauth app configured for platform")
	}
	adapter, err := o.adapters.Lookup(plat)
	if err != nil {
		return c, syncerr.NewConfiguration(conn.Platform, err.Error())
	}
	acct := platform.Account{AccountID: conn.AccountID, AccessToken: tok, App: *creds}
	scope := normalize.Scope{TenantID: conn.TenantID, ConnectionID: conn.ID}

	// 3. campaigns
	raw, err := adapter.FetchCampaigns(ctx, acct)
	if err != nil {
		return c, err
	}
	c.campaigns, err = o.store.UpsertCampaigns(ctx, normalize.Campaigns(raw, scope))
	if err != nil {
		return c, err
	}
	if c.campaigns == 0 {
		o.log.Warnw("no campaigns returned, skipping metrics",
			"tenant", conn.TenantID, "connection", conn.ID, "platform", conn.Platform, "account", conn.AccountID)
		return c, nil
	}

	// 4. metrics
	window := platform.LastDays(o.Now(), o.daysBack(opts))
	rawMetrics, err := adapter.FetchMetrics(ctx, acct, window)
	if err != nil {
		return c, err
	}
	lookup, err := o.store.CampaignLookup(ctx, conn.TenantID, conn.Platform)
	if err != nil {
		return c, err
	}
	rows, dropped := normalize.Metrics(rawMetrics, scope, lookup)
	c.dropped = dropped
	c.metrics, err = o.store.UpsertMetrics(ctx, rows)
	if err != nil {
		return c, err
	}
	return c, nil
}

// claim takes the connection for this run under the status-write deadline.
func (o *Orchestrator) claim(ctx context.Context, id uint64) error {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StatusTimeout)
	defer cancel()
	if err := o.conns.Claim(sctx, id); err != nil {
		if errors.Is(err, connection.ErrBusy) {
			return err
		}
		return syncerr.NewPersistence("claim_connection", err)
	}
	return nil
}

// writeStatus runs fn under a context that survives the caller's
// cancellation, bounded by StatusTimeout.  Failures are logged.
func (o *Orchestrator) writeStatus(ctx context.Context, id uint64, fn func(context.Context) error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StatusTimeout)
	defer cancel()
	if err := fn(sctx); err != nil {
		o.log.Errorw("connection status write failed", "connection", id, "err", err)
	}
}
