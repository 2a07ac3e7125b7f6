// internal/api/router.go
//
// HTTP surface of adsync.
//
// Routes
// ------
//
//	GET    /healthz                          liveness + DB ping
//	GET    /metrics                          Prometheus
//	GET    /api/oauth-apps                   any role
//	POST   /api/oauth-apps                   admin+
//	DELETE /api/oauth-apps/{platform}        owner
//	GET    /api/connections                  any role
//	DELETE /api/connections/{id}             admin+
//	POST   /api/sync                         any role
//	POST   /api/sync/connections/{id}        any role
//
// Middleware order
// ----------------
//
//	RequestID → Recoverer → Security → requestinfo.Enrich → access log
//	/api only: auth.FromGateway → active-tenant check → acl per route
//
// Notes
// -----
//   - Every response body is JSON; errors are {"error": "..."}.
//   - A connection sync that another run holds answers 409.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/acl"
	"github.com/yanizio/adsync/internal/audit"
	"github.com/yanizio/adsync/internal/auth"
	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/middleware"
	"github.com/yanizio/adsync/internal/orchestrator"
	"github.com/yanizio/adsync/internal/requestinfo"
	"github.com/yanizio/adsync/internal/tenant"
)

// Apps is the credential service surface.
type Apps interface {
	List(ctx context.Context, tenantID uint64) ([]credential.App, error)
	Upsert(ctx context.Context, actor string, tenantID uint64, platform string, in credential.UpsertInput) (*credential.App, error)
	Delete(ctx context.Context, actor string, tenantID uint64, platform string) error
}

// Connections is the registry surface.
type Connections interface {
	ListByTenant(ctx context.Context, tenantID uint64) ([]connection.Connection, error)
	Delete(ctx context.Context, tenantID, id uint64) error
}

// Syncer triggers manual runs.
type Syncer interface {
	SyncTenant(ctx context.Context, tenantID uint64, opts orchestrator.Options) ([]orchestrator.Result, error)
	SyncConnectionByID(ctx context.Context, tenantID, id uint64, opts orchestrator.Options) (orchestrator.Result, error)
}

// Tenants confirms the gateway's tenant is active.
type Tenants interface {
	Get(ctx context.Context, id uint64) (*tenant.Record, error)
}

// Pinger backs the health check.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps bundles handler collaborators.
type Deps struct {
	Apps        Apps
	Connections Connections
	Syncer      Syncer
	Tenants     Tenants
	Audit       audit.Recorder
	DB          Pinger
}

// Handler holds the route handlers.
type Handler struct {
	d             Deps
	log           *zap.SugaredLogger
	expiryWarning time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New builds a Handler.  expiryWarning is the "token expiring soon" window.
func New(d Deps, expiryWarning time.Duration, log *zap.SugaredLogger) *Handler {
	if d.Audit == nil {
		d.Audit = audit.Discard{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{d: d, log: log, expiryWarning: expiryWarning, Now: time.Now}
}

// Routes returns the root router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)
	r.Use(h.accessLog)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.FromGateway)
		r.Use(h.activeTenant)

		r.Route("/oauth-apps", func(r chi.Router) {
			r.Get("/", h.listApps)
			r.With(acl.RequireRole(auth.RoleAdmin)).Post("/", h.upsertApp)
			r.With(acl.RequireRole(auth.RoleOwner)).Delete("/{platform}", h.deleteApp)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.listConnections)
			r.With(acl.RequireRole(auth.RoleAdmin)).Delete("/{id}", h.deleteConnection)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.syncTenant)
			r.Post("/connections/{id}", h.syncConnection)
		})
	})
	return r
}

// activeTenant rejects principals whose tenant is unknown, suspended, or
// deleted.  Records come from the tenant cache, so a suspension applies
// within tenants.cache_max_age.
func (h *Handler) activeTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if _, err := h.d.Tenants.Get(r.Context(), p.TenantID); err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				writeError(w, http.StatusForbidden, "tenant is not active")
				return
			}
			h.log.Errorw("tenant lookup", "tenant", p.TenantID, "err", err)
			writeError(w, http.StatusInternalServerError, "tenant lookup failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.d.DB != nil {
		if err := h.d.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
