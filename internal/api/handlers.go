package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/adsync/internal/acl"
	"github.com/yanizio/adsync/internal/audit"
	"github.com/yanizio/adsync/internal/auth"
	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/orchestrator"
)

const maxBody = 64 << 10

/* ------------------------------------------------------------------ */
/* oauth apps                                                         */
/* ------------------------------------------------------------------ */

type appsResponse struct {
	Apps      []credential.App `json:"apps"`
	CanManage bool             `json:"can_manage"`
}

func (h *Handler) listApps(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	apps, err := h.d.Apps.List(r.Context(), p.TenantID)
	if err != nil {
		h.internal(w, "list oauth apps", err)
		return
	}
	out := make([]credential.App, len(apps))
	for i, a := range apps {
		// A stored app always has a client secret.
		a.ClientSecret = credential.SecretUnchanged
		out[i] = a.Masked()
	}
	writeJSON(w, http.StatusOK, appsResponse{Apps: out, CanManage: acl.CanManageApps(p)})
}

type upsertAppRequest struct {
	Platform string `json:"platform"`
	credential.UpsertInput
}

func (h *Handler) upsertApp(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req upsertAppRequest
	if !decode(w, r, &req) {
		return
	}
	app, err := h.d.Apps.Upsert(r.Context(), p.Actor(), p.TenantID, req.Platform, req.UpsertInput)
	switch {
	case errors.Is(err, credential.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.internal(w, "upsert oauth app", err)
	default:
		writeJSON(w, http.StatusOK, app)
	}
}

func (h *Handler) deleteApp(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	err := h.d.Apps.Delete(r.Context(), p.Actor(), p.TenantID, chi.URLParam(r, "platform"))
	switch {
	case errors.Is(err, credential.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, credential.ErrNotFound):
		writeError(w, http.StatusNotFound, "oauth app not found")
	case err != nil:
		h.internal(w, "delete oauth app", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

/* ------------------------------------------------------------------ */
/* connections                                                        */
/* ------------------------------------------------------------------ */

type connectionView struct {
	ID                uint64     `json:"id"`
	Platform          string     `json:"platform"`
	AccountID         string     `json:"account_id"`
	AccountName       string     `json:"account_name"`
	Status            string     `json:"status"`
	SyncError         string     `json:"sync_error,omitempty"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
	TokenExpiresAt    *time.Time `json:"token_expires_at"`
	TokenExpiringSoon bool       `json:"token_expiring_soon"`
}

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	conns, err := h.d.Connections.ListByTenant(r.Context(), p.TenantID)
	if err != nil {
		h.internal(w, "list connections", err)
		return
	}
	now := h.Now()
	out := make([]connectionView, len(conns))
	for i := range conns {
		c := &conns[i]
		out[i] = connectionView{
			ID:                c.ID,
			Platform:          c.Platform,
			AccountID:         c.AccountID,
			AccountName:       c.AccountName,
			Status:            string(c.Status),
			SyncError:         c.SyncError.String,
			LastSyncedAt:      c.LastSyncedAt,
			TokenExpiresAt:    c.TokenExpiresAt,
			TokenExpiringSoon: c.ExpiringSoon(now, h.expiryWarning),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (h *Handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := h.d.Connections.Delete(r.Context(), p.TenantID, id)
	switch {
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, "connection not found")
		return
	case err != nil:
		h.internal(w, "delete connection", err)
		return
	}
	h.d.Audit.Record(r.Context(), audit.Entry{
		TenantID: p.TenantID,
		Actor:    p.Actor(),
		Action:   audit.ActionConnectionDisconnect,
		Entity:   "platform_connection",
		EntityID: strconv.FormatUint(id, 10),
	})
	w.WriteHeader(http.StatusNoContent)
}

/* ------------------------------------------------------------------ */
/* sync triggers                                                      */
/* ------------------------------------------------------------------ */

func (h *Handler) syncTenant(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	opts, ok := syncOptions(w, r)
	if !ok {
		return
	}
	results, err := h.d.Syncer.SyncTenant(r.Context(), p.TenantID, opts)
	switch {
	case errors.Is(err, orchestrator.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.internal(w, "sync tenant", err)
		return
	}
	h.d.Audit.Record(r.Context(), audit.Entry{
		TenantID: p.TenantID,
		Actor:    p.Actor(),
		Action:   audit.ActionSyncTrigger,
		Entity:   "tenant",
		EntityID: strconv.FormatUint(p.TenantID, 10),
		Platform: opts.Platform,
	})
	if results == nil {
		results = []orchestrator.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) syncConnection(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	opts, ok := syncOptions(w, r)
	if !ok {
		return
	}
	res, err := h.d.Syncer.SyncConnectionByID(r.Context(), p.TenantID, id, opts)
	switch {
	case errors.Is(err, orchestrator.ErrConnectionNotFound):
		writeError(w, http.StatusNotFound, "connection not found")
		return
	case errors.Is(err, orchestrator.ErrConnectionBusy):
		writeError(w, http.StatusConflict, "connection sync already in progress")
		return
	case errors.Is(err, orchestrator.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.internal(w, "sync connection", err)
		return
	}
	h.d.Audit.Record(r.Context(), audit.Entry{
		TenantID: p.TenantID,
		Actor:    p.Actor(),
		Action:   audit.ActionSyncTrigger,
		Entity:   "platform_connection",
		EntityID: strconv.FormatUint(id, 10),
		Platform: res.Platform,
	})
	writeJSON(w, http.StatusOK, res)
}

// syncOptions reads ?platform=&days_back=&force_refresh=.
func syncOptions(w http.ResponseWriter, r *http.Request) (orchestrator.Options, bool) {
	q := r.URL.Query()
	opts := orchestrator.Options{Platform: q.Get("platform")}
	if v := q.Get("days_back"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days_back must be between 1 and 365")
			return opts, false
		}
		opts.DaysBack = n
	}
	if v := q.Get("force_refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force_refresh must be a boolean")
			return opts, false
		}
		opts.ForceRefresh = b
	}
	return opts, true
}

/* ------------------------------------------------------------------ */
/* helpers                                                            */
/* ------------------------------------------------------------------ */

func idParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.log.Errorw(op, "err", err)
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
