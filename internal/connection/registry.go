// internal/connection/registry.go
//
// Connection Registry: reads and state writes for `platform_connection`.
//
// Context
// -------
// Rows are created by the authorization flow (outside this service) and
// from then on mutated only by the orchestrator and by an explicit
// disconnect.  Every write is scoped to one connection id, so concurrent
// pipelines never need a cross-row lock.
//
// Staleness
// ---------
// A process that dies mid-run leaves its connection in `syncing`.
// ListActive treats such a row as eligible again once `sync_started_at` is
// older than staleAfter.
//
// Claim is the only way into `syncing`.  It is a conditional UPDATE on the
// same eligibility rule, so two runs racing for one row cannot both win.
//
// Notes
// -----
//   - Queries use `?` placeholders (MySQL).
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a connection id does not exist (or belongs
// to a different tenant).
var ErrNotFound = errors.New("connection: not found")

// ErrBusy is returned by Claim when another run holds the connection.
var ErrBusy = errors.New("connection: sync already in progress")

const columns = `id, tenant_id, platform, account_id, account_name, access_token,
               refresh_token, token_expires_at, status, sync_error, last_synced_at,
               sync_started_at, created_at, updated_at`

// Registry is safe for concurrent use.
type Registry struct {
	db         *sqlx.DB
	staleAfter time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewRegistry binds a registry to the control-plane pool.  staleAfter <= 0
// defaults to 30 minutes.
func NewRegistry(db *sqlx.DB, staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Registry{db: db, staleAfter: staleAfter, Now: time.Now}
}

// ListActive returns the tenant's connections that may be synced now:
// healthy, pending, and error rows plus stale syncing rows.  An empty
// platform means every platform.
func (r *Registry) ListActive(ctx context.Context, tenantID uint64, platform string) ([]Connection, error) {
	q := `
        SELECT ` + columns + `
        FROM   platform_connection
        WHERE  tenant_id = ?
          AND  (status IN ('healthy', 'pending', 'error')
                OR (status = 'syncing' AND (sync_started_at IS NULL OR sync_started_at < ?)))`
	args := []any{tenantID, r.Now().UTC().Add(-r.staleAfter)}
	if platform != "" {
		q += `
          AND  platform = ?`
		args = append(args, platform)
	}
	q += `
        ORDER  BY platform, id`

	var rows []Connection
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list active connections: %w", err)
	}
	return rows, nil
}

// ListByTenant returns every connection of the tenant regardless of status.
func (r *Registry) ListByTenant(ctx context.Context, tenantID uint64) ([]Connection, error) {
	q := `
        SELECT ` + columns + `
        FROM   platform_connection
        WHERE  tenant_id = ?
        ORDER  BY platform, id`
	var rows []Connection
	if err := r.db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return rows, nil
}

// Get fetches one connection by id.
func (r *Registry) Get(ctx context.Context, id uint64) (*Connection, error) {
	q := `
        SELECT ` + columns + `
        FROM   platform_connection
        WHERE  id = ?
        LIMIT  1`
	var c Connection
	if err := r.db.GetContext(ctx, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection %d: %w", id, err)
	}
	return &c, nil
}

// Claim moves the connection to syncing and stamps sync_started_at, unless
// a run that is not yet stale already holds it.  The loser gets ErrBusy.
func (r *Registry) Claim(ctx context.Context, id uint64) error {
	now := r.Now().UTC()
	const q = `UPDATE platform_connection
                  SET status = 'syncing', sync_started_at = ?, updated_at = ?
                WHERE id = ?
                  AND (status <> 'syncing' OR sync_started_at IS NULL OR sync_started_at < ?)`
	res, err := r.db.ExecContext(ctx, q, now, now, id, now.Add(-r.staleAfter))
	if err != nil {
		return fmt.Errorf("claim %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim %d: %w", id, err)
	}
	if n == 0 {
		return ErrBusy
	}
	return nil
}

// SetStatus moves the connection to status.  Entering syncing goes through
// Claim; error records msg; any other status clears the error.
func (r *Registry) SetStatus(ctx context.Context, id uint64, status Status, msg string) error {
	now := r.Now().UTC()
	var (
		q    string
		args []any
	)
	switch status {
	case StatusSyncing:
		return r.Claim(ctx, id)
	case StatusError:
		q = `UPDATE platform_connection
                SET status = ?, sync_error = ?, sync_started_at = NULL, updated_at = ?
              WHERE id = ?`
		args = []any{status, msg, now, id}
	default:
		q = `UPDATE platform_connection
                SET status = ?, sync_error = NULL, sync_started_at = NULL, updated_at = ?
              WHERE id = ?`
		args = []any{status, now, id}
	}
	return r.exec(ctx, "set status", id, q, args...)
}

// RecordSuccess marks the connection healthy, clears the error, and stamps
// the last successful sync time.
func (r *Registry) RecordSuccess(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE platform_connection
                  SET status = 'healthy', sync_error = NULL, last_synced_at = ?,
                      sync_started_at = NULL, updated_at = ?
                WHERE id = ?`
	return r.exec(ctx, "record success", id, q, at.UTC(), r.Now().UTC(), id)
}

// UpdateToken persists a refreshed access token.  An empty refresh token
// keeps the stored one; a nil expiry stores NULL (non-expiring).
func (r *Registry) UpdateToken(ctx context.Context, id uint64, access, refresh string, expiry *time.Time) error {
	const q = `UPDATE platform_connection
                  SET access_token = ?,
                      refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
                      token_expires_at = ?, updated_at = ?
                WHERE id = ?`
	var exp any
	if expiry != nil {
		exp = expiry.UTC()
	}
	return r.exec(ctx, "update token", id, q, access, refresh, exp, r.Now().UTC(), id)
}

// Delete removes a connection of tenantID (explicit disconnect).  Campaign
// and metrics rows stay; they are history.
func (r *Registry) Delete(ctx context.Context, tenantID, id uint64) error {
	const q = `DELETE FROM platform_connection WHERE id = ? AND tenant_id = ?`
	res, err := r.db.ExecContext(ctx, q, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete connection %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Registry) exec(ctx context.Context, op string, id uint64, q string, args ...any) error {
	// RowsAffected is not checked: MySQL reports 0 for an update that
	// changes nothing.
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return nil
}
