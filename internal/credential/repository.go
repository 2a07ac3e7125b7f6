package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// repository holds the non-secret half of an App.
type repository struct {
	db *sqlx.DB
}

const appColumns = `id, tenant_id, platform, client_id, app_id, redirect_uri,
               is_active, is_verified, created_at, updated_at`

func (r *repository) get(ctx context.Context, tenantID uint64, platform string) (*App, error) {
	const q = `
        SELECT ` + appColumns + `
        FROM   oauth_app
        WHERE  tenant_id = ?
          AND  platform  = ?
        LIMIT  1`
	var a App
	if err := r.db.GetContext(ctx, &a, q, tenantID, platform); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get oauth app: %w", err)
	}
	return &a, nil
}

func (r *repository) list(ctx context.Context, tenantID uint64) ([]App, error) {
	const q = `
        SELECT ` + appColumns + `
        FROM   oauth_app
        WHERE  tenant_id = ?
        ORDER  BY platform`
	var apps []App
	if err := r.db.SelectContext(ctx, &apps, q, tenantID); err != nil {
		return nil, fmt.Errorf("list oauth apps: %w", err)
	}
	return apps, nil
}

// upsert writes a by its (tenant_id, platform) unique key.
func (r *repository) upsert(ctx context.Context, a *App) error {
	const q = `
        INSERT INTO oauth_app
               (tenant_id, platform, client_id, app_id, redirect_uri,
                is_active, is_verified, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())
        ON DUPLICATE KEY UPDATE
               client_id    = VALUES(client_id),
               app_id       = VALUES(app_id),
               redirect_uri = VALUES(redirect_uri),
               is_active    = VALUES(is_active),
               is_verified  = VALUES(is_verified),
               updated_at   = VALUES(updated_at)`
	_, err := r.db.ExecContext(ctx, q,
		a.TenantID, a.Platform, a.ClientID, a.AppID, a.RedirectURI, a.IsActive, a.IsVerified)
	if err != nil {
		return fmt.Errorf("upsert oauth app: %w", err)
	}
	return nil
}

func (r *repository) delete(ctx context.Context, tenantID uint64, platform string) error {
	const q = `DELETE FROM oauth_app WHERE tenant_id = ? AND platform = ?`
	res, err := r.db.ExecContext(ctx, q, tenantID, platform)
	if err != nil {
		return fmt.Errorf("delete oauth app: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
