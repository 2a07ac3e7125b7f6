// internal/tenant/model.go
//
// `tenant` table row model and queries.
//
// Context
// -------
// A tenant is a company account that owns OAuth apps and platform
// connections.  Identity lives in the gateway; this table only tells the
// engine which tenants exist and whether they may sync.
//
// Schema reference
//
//	CREATE TABLE tenant (
//	    id            BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    name          VARCHAR(255) NOT NULL,
//	    suspended_at  TIMESTAMP NULL,
//	    deleted_at    TIMESTAMP NULL,
//	    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
// Notes
// -----
//   - Queries exclude suspended or deleted rows at SQL level.
//   - Nullable timestamps are `*time.Time`; callers must nil-check.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no active tenant has the id.
var ErrNotFound = errors.New("tenant not found")

// Record mirrors one row in the `tenant` table.
type Record struct {
	ID          uint64     `db:"id"`
	Name        string     `db:"name"`
	SuspendedAt *time.Time `db:"suspended_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Store reads the tenant table.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// AllActive returns every tenant that is neither suspended nor deleted.
func (s *Store) AllActive(ctx context.Context) ([]Record, error) {
	const q = `
        SELECT id, name, suspended_at, deleted_at, created_at, updated_at
        FROM   tenant
        WHERE  suspended_at IS NULL
          AND  deleted_at   IS NULL
        ORDER  BY id`
	var rows []Record
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return rows, nil
}

// ActiveIDs is AllActive reduced to ids.
func (s *Store) ActiveIDs(ctx context.Context) ([]uint64, error) {
	rows, err := s.AllActive(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// ByID fetches one active tenant.
func (s *Store) ByID(ctx context.Context, id uint64) (*Record, error) {
	const q = `
        SELECT id, name, suspended_at, deleted_at, created_at, updated_at
        FROM   tenant
        WHERE  id = ?
          AND  suspended_at IS NULL
          AND  deleted_at   IS NULL
        LIMIT  1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant %d: %w", id, err)
	}
	return &rec, nil
}
