package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/adsync/internal/audit"
	"github.com/yanizio/adsync/internal/auth"
	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/orchestrator"
	"github.com/yanizio/adsync/internal/syncerr"
	"github.com/yanizio/adsync/internal/tenant"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

/* ------------------------------------------------------------------ */
/* fakes                                                              */
/* ------------------------------------------------------------------ */

type fakeApps struct {
	apps     []credential.App
	upserted *credential.UpsertInput
	deleted  string
	err      error
}

func (f *fakeApps) List(context.Context, uint64) ([]credential.App, error) { return f.apps, nil }

func (f *fakeApps) Upsert(_ context.Context, _ string, tenantID uint64, plat string, in credential.UpsertInput) (*credential.App, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserted = &in
	a := credential.App{TenantID: tenantID, Platform: plat, ClientID: in.ClientID, ClientSecret: "x"}.Masked()
	return &a, nil
}

func (f *fakeApps) Delete(_ context.Context, _ string, _ uint64, plat string) error {
	f.deleted = plat
	return f.err
}

type fakeConns struct {
	rows    []connection.Connection
	deleted uint64
}

func (f *fakeConns) ListByTenant(context.Context, uint64) ([]connection.Connection, error) {
	return f.rows, nil
}

func (f *fakeConns) Delete(_ context.Context, _, id uint64) error {
	for _, r := range f.rows {
		if r.ID == id {
			f.deleted = id
			return nil
		}
	}
	return connection.ErrNotFound
}

type fakeSyncer struct{ opts orchestrator.Options }

func (f *fakeSyncer) SyncTenant(_ context.Context, tenantID uint64, opts orchestrator.Options) ([]orchestrator.Result, error) {
	f.opts = opts
	if opts.Platform == "myspace" {
		return nil, orchestrator.ErrInvalidOptions
	}
	return []orchestrator.Result{
		{TenantID: tenantID, ConnectionID: 1, Success: true, CampaignsSynced: 2},
		{TenantID: tenantID, ConnectionID: 2, ErrorKind: syncerr.KindRefreshUnsupported},
	}, nil
}

func (f *fakeSyncer) SyncConnectionByID(_ context.Context, tenantID, id uint64, opts orchestrator.Options) (orchestrator.Result, error) {
	f.opts = opts
	switch id {
	case 1:
	case 2:
		return orchestrator.Result{TenantID: tenantID, ConnectionID: id, Skipped: true}, orchestrator.ErrConnectionBusy
	default:
		return orchestrator.Result{}, orchestrator.ErrConnectionNotFound
	}
	return orchestrator.Result{TenantID: tenantID, ConnectionID: id, Platform: "google", Success: true}, nil
}

type fakeTenants struct{}

func (fakeTenants) Get(_ context.Context, id uint64) (*tenant.Record, error) {
	if id == 99 {
		return nil, tenant.ErrNotFound
	}
	return &tenant.Record{ID: id}, nil
}

type memAudit struct{ entries []audit.Entry }

func (m *memAudit) Record(_ context.Context, e audit.Entry) { m.entries = append(m.entries, e) }

type rig struct {
	srv    http.Handler
	apps   *fakeApps
	conns  *fakeConns
	syncer *fakeSyncer
	audit  *memAudit
}

func newRig() *rig {
	r := &rig{apps: &fakeApps{}, conns: &fakeConns{}, syncer: &fakeSyncer{}, audit: &memAudit{}}
	h := New(Deps{
		Apps:        r.apps,
		Connections: r.conns,
		Syncer:      r.syncer,
		Tenants:     fakeTenants{},
		Audit:       r.audit,
	}, 7*24*time.Hour, nil)
	h.Now = func() time.Time { return now }
	r.srv = h.Routes()
	return r
}

func (r *rig) do(method, path, role, body string) *httptest.ResponseRecorder {
	return r.doTenant(method, path, role, body, "3")
}

func (r *rig) doTenant(method, path, role, body, tenantID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(auth.HeaderTenantID, tenantID)
	req.Header.Set(auth.HeaderUserID, "u1")
	if role != "" {
		req.Header.Set(auth.HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	r.srv.ServeHTTP(rec, req)
	return rec
}

/* ------------------------------------------------------------------ */
/* tests                                                              */
/* ------------------------------------------------------------------ */

func TestListAppsMasksSecretsAndReportsCanManage(t *testing.T) {
	r := newRig()
	r.apps.apps = []credential.App{{ID: 1, TenantID: 3, Platform: "google", ClientID: "cid"}}

	for role, want := range map[string]bool{"member": false, "admin": true, "owner": true} {
		rec := r.do(http.MethodGet, "/api/oauth-apps", role, "")
		require.Equal(t, http.StatusOK, rec.Code, role)

		var body struct {
			Apps []struct {
				Platform     string `json:"platform"`
				ClientSecret string `json:"client_secret"`
			} `json:"apps"`
			CanManage bool `json:"can_manage"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Apps, 1)
		assert.Equal(t, credential.SecretUnchanged, body.Apps[0].ClientSecret)
		assert.Equal(t, want, body.CanManage, role)
	}
}

func TestUpsertAppRoleGate(t *testing.T) {
	r := newRig()
	body := `{"platform":"meta","client_id":"app","client_secret":"s"}`

	assert.Equal(t, http.StatusForbidden, r.do(http.MethodPost, "/api/oauth-apps", "member", body).Code)
	assert.Nil(t, r.apps.upserted)

	rec := r.do(http.MethodPost, "/api/oauth-apps", "admin", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, r.apps.upserted)
	assert.Equal(t, "app", r.apps.upserted.ClientID)
	assert.Contains(t, rec.Body.String(), credential.SecretUnchanged)
	assert.NotContains(t, rec.Body.String(), `"x"`)
}

func TestUpsertAppInvalid(t *testing.T) {
	r := newRig()
	r.apps.err = credential.ErrInvalid
	rec := r.do(http.MethodPost, "/api/oauth-apps", "owner", `{"platform":"snapchat","client_id":"c"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = r.do(http.MethodPost, "/api/oauth-apps", "owner", `{"platform":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAppOwnerOnly(t *testing.T) {
	r := newRig()
	assert.Equal(t, http.StatusForbidden, r.do(http.MethodDelete, "/api/oauth-apps/google", "admin", "").Code)
	assert.Empty(t, r.apps.deleted)

	assert.Equal(t, http.StatusNoContent, r.do(http.MethodDelete, "/api/oauth-apps/google", "owner", "").Code)
	assert.Equal(t, "google", r.apps.deleted)

	r.apps.err = credential.ErrNotFound
	assert.Equal(t, http.StatusNotFound, r.do(http.MethodDelete, "/api/oauth-apps/meta", "owner", "").Code)
}

func TestListConnectionsFlagsExpiringTokens(t *testing.T) {
	r := newRig()
	soon := now.Add(48 * time.Hour)
	later := now.Add(30 * 24 * time.Hour)
	r.conns.rows = []connection.Connection{
		{ID: 1, Platform: "meta", Status: connection.StatusHealthy, TokenExpiresAt: &soon},
		{ID: 2, Platform: "google", Status: connection.StatusError, TokenExpiresAt: &later,
			SyncError: sql.NullString{String: "auth [google]: reconnect required", Valid: true}},
		{ID: 3, Platform: "tiktok", Status: connection.StatusPending},
	}

	rec := r.do(http.MethodGet, "/api/connections", "member", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Connections []connectionView `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Connections, 3)
	assert.True(t, body.Connections[0].TokenExpiringSoon)
	assert.False(t, body.Connections[1].TokenExpiringSoon)
	assert.Equal(t, "auth [google]: reconnect required", body.Connections[1].SyncError)
	assert.False(t, body.Connections[2].TokenExpiringSoon)
	assert.NotContains(t, rec.Body.String(), "access_token")
}

func TestDeleteConnectionAudited(t *testing.T) {
	r := newRig()
	r.conns.rows = []connection.Connection{{ID: 5}}

	assert.Equal(t, http.StatusForbidden, r.do(http.MethodDelete, "/api/connections/5", "member", "").Code)
	assert.Equal(t, http.StatusNotFound, r.do(http.MethodDelete, "/api/connections/6", "admin", "").Code)
	assert.Equal(t, http.StatusBadRequest, r.do(http.MethodDelete, "/api/connections/abc", "admin", "").Code)
	require.Equal(t, http.StatusNoContent, r.do(http.MethodDelete, "/api/connections/5", "admin", "").Code)

	require.Len(t, r.audit.entries, 1)
	e := r.audit.entries[0]
	assert.Equal(t, audit.ActionConnectionDisconnect, e.Action)
	assert.Equal(t, "5", e.EntityID)
	assert.Equal(t, "user:u1", e.Actor)
}

func TestSyncTenantParsesOptions(t *testing.T) {
	r := newRig()
	rec := r.do(http.MethodPost, "/api/sync?platform=meta&days_back=7&force_refresh=true", "member", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orchestrator.Options{Platform: "meta", DaysBack: 7, ForceRefresh: true}, r.syncer.opts)
	assert.Contains(t, rec.Body.String(), `"error_kind":"refresh_unsupported"`)
	require.Len(t, r.audit.entries, 1)
	assert.Equal(t, audit.ActionSyncTrigger, r.audit.entries[0].Action)

	assert.Equal(t, http.StatusBadRequest, r.do(http.MethodPost, "/api/sync?days_back=0", "member", "").Code)
	assert.Equal(t, http.StatusBadRequest, r.do(http.MethodPost, "/api/sync?force_refresh=maybe", "member", "").Code)
	assert.Equal(t, http.StatusBadRequest, r.do(http.MethodPost, "/api/sync?platform=myspace", "member", "").Code)
}

func TestSyncConnection(t *testing.T) {
	r := newRig()
	rec := r.do(http.MethodPost, "/api/sync/connections/1", "member", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	assert.Equal(t, http.StatusNotFound, r.do(http.MethodPost, "/api/sync/connections/3", "member", "").Code)
	require.Len(t, r.audit.entries, 1)
}

func TestSyncConnectionAlreadyRunningConflicts(t *testing.T) {
	r := newRig()
	rec := r.do(http.MethodPost, "/api/sync/connections/2", "member", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")
	assert.Empty(t, r.audit.entries)
}

func TestGatewayHeadersRequired(t *testing.T) {
	r := newRig()
	assert.Equal(t, http.StatusUnauthorized, r.do(http.MethodGet, "/api/connections", "", "").Code)
	assert.Equal(t, http.StatusForbidden, r.doTenant(http.MethodGet, "/api/connections", "owner", "", "99").Code)
}

func TestHealthz(t *testing.T) {
	r := newRig()
	rec := httptest.NewRecorder()
	r.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
