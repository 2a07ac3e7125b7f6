package connection

import (
	"database/sql"
	"time"
)

// Status is the per-connection sync state.
//
//	pending ─┐
//	healthy ─┼─► syncing ─► healthy | error
//	error   ─┘
//
// syncing is never an end state; a row left in it by a crashed run becomes
// eligible again once it is older than the registry's stale window.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusHealthy Status = "healthy"
	StatusError   Status = "error"
)

// Connection mirrors one row of `platform_connection`: one authorized ad
// account of one tenant on one platform.
type Connection struct {
	ID             uint64         `db:"id"`
	TenantID       uint64         `db:"tenant_id"`
	Platform       string         `db:"platform"`
	AccountID      string         `db:"account_id"`
	AccountName    string         `db:"account_name"`
	AccessToken    string         `db:"access_token"`
	RefreshToken   sql.NullString `db:"refresh_token"`
	TokenExpiresAt *time.Time     `db:"token_expires_at"` // NULL = does not expire
	Status         Status         `db:"status"`
	SyncError      sql.NullString `db:"sync_error"`
	LastSyncedAt   *time.Time     `db:"last_synced_at"`
	SyncStartedAt  *time.Time     `db:"sync_started_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// TokenValid reports whether the stored access token can be used at now.
func (c *Connection) TokenValid(now time.Time) bool {
	return c.TokenExpiresAt == nil || now.Before(*c.TokenExpiresAt)
}

// ExpiringSoon reports whether the token expires within window of now.
// Already-expired tokens count as expiring soon.
func (c *Connection) ExpiringSoon(now time.Time, window time.Duration) bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return c.TokenExpiresAt.Sub(now) <= window
}
