// Package metrics holds the Prometheus instruments used across the sync
// engine.  All collectors are registered with the global registry, so
// mounting promhttp.Handler() in main.go is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_connection_syncs_total",
			Help: "Connection pipeline runs by platform and outcome (success, failure, skipped).",
		}, []string{"platform", "outcome"})

	SyncErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_connection_sync_errors_total",
			Help: "Failed connection pipeline runs by platform and error kind.",
		}, []string{"platform", "kind"})

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsync_connection_sync_duration_seconds",
			Help:    "Wall time of one connection pipeline run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"platform"})

	SyncsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adsync_connection_syncs_in_flight",
			Help: "Connection pipelines currently executing, per platform pool.",
		}, []string{"platform"})

	CampaignsSyncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_campaigns_synced_total",
			Help: "Campaign rows upserted into the canonical store.",
		}, []string{"platform"})

	MetricsRowsSyncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_metrics_rows_synced_total",
			Help: "Metrics rows upserted into the canonical store.",
		}, []string{"platform"})

	MetricsRowsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_metrics_rows_dropped_total",
			Help: "Raw metric rows dropped because the campaign did not resolve or the row was unparsable.",
		}, []string{"platform"})

	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_token_refresh_total",
			Help: "Access-token refresh attempts by platform and result.",
		}, []string{"platform", "result"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsync_upstream_requests_total",
			Help: "HTTP exchanges with ad platforms by operation and status code.",
		}, []string{"platform", "op", "code"})

	TenantSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_tenant_skips_total",
			Help: "Tenants skipped by the all-tenants driver because their connections could not be listed.",
		})

	// Tenant record cache used by the API.
	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_tenant_load_total",
			Help: "Tenant records loaded into the cache.",
		})
	TenantLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_tenant_load_errors_total",
			Help: "Tenant record loads that failed or found no active tenant.",
		})
	TenantEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsync_tenant_evict_total",
			Help: "Tenant records evicted from the cache.",
		})
	CachedTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adsync_cached_tenants",
			Help: "Tenant records currently cached.",
		})
)

func init() {
	prometheus.MustRegister(
		SyncRunsTotal,
		SyncErrorsTotal,
		SyncDuration,
		SyncsInFlight,
		CampaignsSyncedTotal,
		MetricsRowsSyncedTotal,
		MetricsRowsDroppedTotal,
		TokenRefreshTotal,
		UpstreamRequestsTotal,
		TenantSkipsTotal,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantEvictTotal,
		CachedTenants,
	)
}
