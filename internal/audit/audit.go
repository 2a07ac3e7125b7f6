// internal/audit/audit.go
//
// Append-only audit trail for credential and connection mutations.
//
// Context
// -------
// Every mutating API call (OAuth app upsert or delete, connection
// disconnect, manual sync trigger) appends one row to `audit_log`:
//
//	id (uuid) | tenant_id | actor | action | entity | entity_id | platform
//	ip | country | user_agent | created_at
//
// Secret material never enters an entry; there is no payload column.
// Origin fields come from requestinfo when the call arrived over HTTP.
//
// Failure policy
// --------------
// Writing the trail must not fail the mutation it describes.  Trail.Record
// logs a failed insert at ERROR and returns.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/requestinfo"
)

// Actions recorded by the service.
const (
	ActionOAuthAppUpsert       = "oauth_app.upsert"
	ActionOAuthAppDelete       = "oauth_app.delete"
	ActionConnectionDisconnect = "connection.disconnect"
	ActionSyncTrigger          = "sync.trigger"
)

// Entry mirrors one `audit_log` row.
type Entry struct {
	ID        string    `db:"id"`
	TenantID  uint64    `db:"tenant_id"`
	Actor     string    `db:"actor"`
	Action    string    `db:"action"`
	Entity    string    `db:"entity"`
	EntityID  string    `db:"entity_id"`
	Platform  string    `db:"platform"`
	IP        string    `db:"ip"`
	Country   string    `db:"country"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// Recorder is what mutating components depend on.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Trail writes entries to MySQL.
type Trail struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

func NewTrail(db *sqlx.DB, log *zap.SugaredLogger) *Trail {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Trail{db: db, log: log}
}

const insertSQL = `
        INSERT INTO audit_log
               (id, tenant_id, actor, action, entity, entity_id, platform,
                ip, country, user_agent, created_at)
        VALUES (:id, :tenant_id, :actor, :action, :entity, :entity_id, :platform,
                :ip, :country, :user_agent, :created_at)`

// Record stamps id, time, and request origin, then inserts.
func (t *Trail) Record(ctx context.Context, e Entry) {
	e = Stamp(ctx, e)
	if _, err := t.db.NamedExecContext(ctx, insertSQL, e); err != nil {
		t.log.Errorw("audit write failed",
			"tenant", e.TenantID, "actor", e.Actor, "action", e.Action,
			"entity", e.Entity, "entity_id", e.EntityID, "err", err)
	}
}

// Stamp fills ID, CreatedAt, and origin fields that are still empty.
func Stamp(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if info := requestinfo.FromContext(ctx); info != nil {
		if e.IP == "" {
			e.IP = info.IPString()
		}
		if e.Country == "" {
			e.Country = info.CountryISO
		}
		if e.UserAgent == "" {
			e.UserAgent = info.UA.Summary()
		}
	}
	return e
}

// Discard is a Recorder that drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, Entry) {}
