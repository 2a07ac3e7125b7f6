// internal/audit/audit_test.go
//
// Run: go test ./internal/audit -v

package audit

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/adsync/internal/requestinfo"
)

func TestRecordInsertsStampedEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WithArgs(sqlmock.AnyArg(), uint64(4), "user:9", ActionOAuthAppDelete, "oauth_app", "meta", "meta",
			"203.0.113.5", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := requestinfo.WithInfo(context.Background(), &requestinfo.Info{IP: net.ParseIP("203.0.113.5")})
	NewTrail(sqlx.NewDb(db, "mysql"), nil).Record(ctx, Entry{
		TenantID: 4, Actor: "user:9", Action: ActionOAuthAppDelete,
		Entity: "oauth_app", EntityID: "meta", Platform: "meta",
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnError(errors.New("table is read only"))

	// Must not panic or block.
	NewTrail(sqlx.NewDb(db, "mysql"), nil).Record(context.Background(), Entry{TenantID: 1, Action: ActionSyncTrigger})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestStampKeepsExplicitFields(t *testing.T) {
	e := Stamp(context.Background(), Entry{ID: "fixed", IP: "1.2.3.4"})
	if e.ID != "fixed" || e.IP != "1.2.3.4" || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected stamp: %+v", e)
	}

	e = Stamp(context.Background(), Entry{})
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Fatalf("generated id %q is not a uuid: %v", e.ID, err)
	}
}
