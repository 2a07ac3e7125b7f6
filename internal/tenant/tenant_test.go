package tenant

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var cols = []string{"id", "name", "suspended_at", "deleted_at", "created_at", "updated_at"}

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "mysql")), mock
}

func TestActiveIDs(t *testing.T) {
	s, mock := newStore(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("suspended_at IS NULL")).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "Acme", nil, nil, now, now).
			AddRow(4, "Globex", nil, nil, now, now))

	ids, err := s.ActiveIDs(context.Background())
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Fatalf("ids = %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestByIDNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM   tenant")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows(cols))

	if _, err := s.ByID(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

type countingLoader struct{ calls atomic.Int32 }

func (l *countingLoader) ByID(_ context.Context, id uint64) (*Record, error) {
	l.calls.Add(1)
	if id == 0 {
		return nil, ErrNotFound
	}
	return &Record{ID: id, Name: "t"}, nil
}

func TestCacheLoadsOnceAndEvictsIdle(t *testing.T) {
	l := &countingLoader{}
	c := NewCache(l, time.Minute, time.Hour, 10, nil)
	defer c.Close()

	for i := 0; i < 3; i++ {
		rec, err := c.Get(context.Background(), 7)
		if err != nil || rec.ID != 7 {
			t.Fatalf("Get = (%v, %v)", rec, err)
		}
	}
	if n := l.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}

	c.evict(time.Now().Add(2 * time.Minute))
	if _, err := c.Get(context.Background(), 7); err != nil {
		t.Fatalf("Get after evict: %v", err)
	}
	if n := l.calls.Load(); n != 2 {
		t.Fatalf("loader called %d times after eviction, want 2", n)
	}
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	l := &countingLoader{}
	c := NewCache(l, time.Minute, time.Hour, 10, nil)
	defer c.Close()

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), 0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if n := l.calls.Load(); n != 2 {
		t.Fatalf("loader called %d times, want 2", n)
	}
}

func TestCacheLRUPressure(t *testing.T) {
	c := NewCache(&countingLoader{}, time.Hour, time.Hour, 2, nil)
	defer c.Close()
	for id := uint64(1); id <= 4; id++ {
		if _, err := c.Get(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	c.evict(time.Now())

	n := 0
	c.m.Range(func(any, any) bool { n++; return true })
	if n != 2 {
		t.Fatalf("cache holds %d entries, want 2", n)
	}
	if _, ok := c.m.Load(uint64(4)); !ok {
		t.Fatalf("most recent tenant evicted")
	}
}

// suspendingLoader answers ErrNotFound once suspended is set.
type suspendingLoader struct {
	calls     atomic.Int32
	suspended atomic.Bool
}

func (l *suspendingLoader) ByID(_ context.Context, id uint64) (*Record, error) {
	l.calls.Add(1)
	if l.suspended.Load() {
		return nil, ErrNotFound
	}
	return &Record{ID: id, Name: "t"}, nil
}

func TestCacheReloadsAfterMaxAgeEvenWhenBusy(t *testing.T) {
	l := &suspendingLoader{}
	c := NewCache(l, time.Hour, time.Minute, 10, nil)
	defer c.Close()
	clock := time.Now()
	c.Now = func() time.Time { return clock }

	if _, err := c.Get(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	l.suspended.Store(true)

	// Constant use inside maxAge keeps serving the cached record.
	for i := 0; i < 3; i++ {
		clock = clock.Add(15 * time.Second)
		if _, err := c.Get(context.Background(), 7); err != nil {
			t.Fatalf("Get within max age: %v", err)
		}
	}
	if n := l.calls.Load(); n != 1 {
		t.Fatalf("loader called %d times within max age, want 1", n)
	}

	clock = clock.Add(30 * time.Second)
	if _, err := c.Get(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after max age", err)
	}
	if _, ok := c.m.Load(uint64(7)); ok {
		t.Fatalf("suspended tenant still cached")
	}
}
