// internal/token/manager.go
//
// Token lifecycle manager.
//
// Context
// -------
// Before any platform call the orchestrator asks for a usable access token.
// A stored token that has not expired is returned with no I/O.  Otherwise
// the platform adapter's refresh protocol is called and the result is
// persisted before it is handed out.
//
//	EnsureValid ─► valid and not forced ─► stored token
//	            └► refresh (singleflight per connection)
//	                 ├─ no app            → configuration
//	                 ├─ unsupported       → refresh_unsupported
//	                 ├─ no refresh token  → auth
//	                 ├─ 429, 5xx, timeout → upstream (unchanged)
//	                 ├─ adapter rejection → auth (wraps upstream cause)
//	                 └─ ok → UpdateToken  → new access token
//
// Notes
// -----
//   - Concurrent refreshes of one connection collapse into one call.
//   - A refresh that returns no expiry stores NULL (non-expiring).
package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/metrics"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
)

// Adapters resolves the refresh protocol per platform.
type Adapters interface {
	Lookup(p platform.Platform) (platform.Adapter, error)
}

// Store persists refreshed credentials.
type Store interface {
	UpdateToken(ctx context.Context, id uint64, access, refresh string, expiry *time.Time) error
}

// Manager is safe for concurrent use.
type Manager struct {
	adapters Adapters
	store    Store
	log      *zap.SugaredLogger
	group    singleflight.Group

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func NewManager(adapters Adapters, store Store, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{adapters: adapters, store: store, log: log, Now: time.Now}
}

// EnsureValid returns an access token usable for conn right now.  app may be
// nil when the tenant has no OAuth app; that only fails when a refresh is
// needed.  force skips the validity check.
func (m *Manager) EnsureValid(ctx context.Context, conn *connection.Connection, app *platform.AppCredentials, force bool) (string, error) {
	if !force && conn.TokenValid(m.Now()) {
		return conn.AccessToken, nil
	}

	key := strconv.FormatUint(conn.ID, 10)
	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.refresh(ctx, conn, app)
	})
	if err != nil {
		return "", err
	}
	tok := v.(string)
	if shared {
		m.log.Debugw("token refresh shared", "connection", conn.ID)
	}
	conn.AccessToken = tok
	return tok, nil
}

func (m *Manager) refresh(ctx context.Context, conn *connection.Connection, app *platform.AppCredentials) (string, error) {
	plat := conn.Platform

	a, err := m.adapters.Lookup(platform.Platform(plat))
	if err != nil {
		return "", syncerr.NewConfiguration(plat, err.Error())
	}
	if app == nil {
		m.observe(plat, "no_app")
		return "", syncerr.NewConfiguration(plat, "no oauth app configured for platform")
	}

	tok, err := a.RefreshToken(ctx, platform.RefreshRequest{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken.String,
		App:          *app,
	})
	switch {
	case errors.Is(err, syncerr.RefreshUnsupported):
		m.observe(plat, "unsupported")
		return "", err
	case errors.Is(err, syncerr.Auth):
		m.observe(plat, "failure")
		return "", err
	case syncerr.Transient(err):
		m.observe(plat, "failure")
		m.log.Warnw("token refresh unavailable, will retry next run",
			"connection", conn.ID, "tenant", conn.TenantID, "platform", plat, "err", err)
		return "", err
	case err != nil:
		m.observe(plat, "failure")
		m.log.Warnw("token refresh failed", "connection", conn.ID, "tenant", conn.TenantID, "platform", plat, "err", err)
		return "", syncerr.NewAuth(plat, "token refresh failed, reconnect required", err)
	}

	var expiry *time.Time
	if tok.ExpiresIn > 0 {
		t := m.Now().Add(tok.ExpiresIn).UTC()
		expiry = &t
	}
	if err := m.store.UpdateToken(ctx, conn.ID, tok.AccessToken, tok.RefreshToken, expiry); err != nil {
		m.observe(plat, "failure")
		return "", syncerr.NewPersistence("update_token", err)
	}

	conn.TokenExpiresAt = expiry
	if tok.RefreshToken != "" {
		conn.RefreshToken.String, conn.RefreshToken.Valid = tok.RefreshToken, true
	}
	m.observe(plat, "success")
	m.log.Infow("token refreshed", "connection", conn.ID, "tenant", conn.TenantID, "platform", plat, "expires_at", expiry)
	return tok.AccessToken, nil
}

func (m *Manager) observe(plat, result string) {
	metrics.TokenRefreshTotal.WithLabelValues(plat, result).Inc()
}
