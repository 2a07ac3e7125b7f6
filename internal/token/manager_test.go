package token

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubAdapter struct {
	plat    platform.Platform
	calls   atomic.Int32
	gate    chan struct{}
	refresh func(platform.RefreshRequest) (*platform.Token, error)
}

func (s *stubAdapter) Platform() platform.Platform { return s.plat }
func (s *stubAdapter) FetchCampaigns(context.Context, platform.Account) ([]platform.RawRecord, error) {
	return nil, nil
}
func (s *stubAdapter) FetchMetrics(context.Context, platform.Account, platform.DateRange) ([]platform.RawRecord, error) {
	return nil, nil
}
func (s *stubAdapter) RefreshToken(_ context.Context, req platform.RefreshRequest) (*platform.Token, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.refresh(req)
}

type update struct {
	id              uint64
	access, refresh string
	expiry          *time.Time
}

type memStore struct {
	mu      sync.Mutex
	updates []update
	err     error
}

func (m *memStore) UpdateToken(_ context.Context, id uint64, access, refresh string, expiry *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update{id, access, refresh, expiry})
	return m.err
}

func newManager(a *stubAdapter, st *memStore) *Manager {
	m := NewManager(platform.NewRegistry(a), st, nil)
	m.Now = func() time.Time { return now }
	return m
}

func expired() *time.Time { t := now.Add(-time.Minute); return &t }

var app = &platform.AppCredentials{ClientID: "cid", ClientSecret: "sec"}

func TestValidTokenSkipsRefresh(t *testing.T) {
	a := &stubAdapter{plat: platform.Google}
	st := &memStore{}
	future := now.Add(time.Hour)
	conn := &connection.Connection{ID: 1, Platform: "google", AccessToken: "live", TokenExpiresAt: &future}

	tok, err := newManager(a, st).EnsureValid(context.Background(), conn, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "live", tok)
	assert.Zero(t, a.calls.Load())
	assert.Empty(t, st.updates)
}

func TestNullExpiryNeverExpires(t *testing.T) {
	a := &stubAdapter{plat: platform.Meta}
	conn := &connection.Connection{ID: 1, Platform: "meta", AccessToken: "forever"}

	tok, err := newManager(a, &memStore{}).EnsureValid(context.Background(), conn, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "forever", tok)
	assert.Zero(t, a.calls.Load())
}

func TestRefreshPersistsRotatedToken(t *testing.T) {
	a := &stubAdapter{plat: platform.LinkedIn, refresh: func(req platform.RefreshRequest) (*platform.Token, error) {
		assert.Equal(t, "r-old", req.RefreshToken)
		assert.Equal(t, "cid", req.App.ClientID)
		return &platform.Token{AccessToken: "a-new", RefreshToken: "r-new", ExpiresIn: time.Hour}, nil
	}}
	st := &memStore{}
	conn := &connection.Connection{
		ID: 9, Platform: "linkedin", AccessToken: "a-old",
		RefreshToken:   sql.NullString{String: "r-old", Valid: true},
		TokenExpiresAt: expired(),
	}

	tok, err := newManager(a, st).EnsureValid(context.Background(), conn, app, false)
	require.NoError(t, err)
	assert.Equal(t, "a-new", tok)

	require.Len(t, st.updates, 1)
	u := st.updates[0]
	assert.Equal(t, uint64(9), u.id)
	assert.Equal(t, "r-new", u.refresh)
	require.NotNil(t, u.expiry)
	assert.True(t, u.expiry.Equal(now.Add(time.Hour)))
	assert.Equal(t, "r-new", conn.RefreshToken.String)
}

func TestForceRefreshIgnoresValidity(t *testing.T) {
	a := &stubAdapter{plat: platform.Google, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
		return &platform.Token{AccessToken: "forced", ExpiresIn: time.Hour}, nil
	}}
	future := now.Add(time.Hour)
	conn := &connection.Connection{ID: 2, Platform: "google", AccessToken: "live", TokenExpiresAt: &future,
		RefreshToken: sql.NullString{String: "r", Valid: true}}

	tok, err := newManager(a, &memStore{}).EnsureValid(context.Background(), conn, app, true)
	require.NoError(t, err)
	assert.Equal(t, "forced", tok)
	assert.EqualValues(t, 1, a.calls.Load())
}

func TestTikTokRefreshUnsupported(t *testing.T) {
	a := &stubAdapter{plat: platform.TikTok, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
		return nil, syncerr.NewRefreshUnsupported("tiktok")
	}}
	st := &memStore{}
	conn := &connection.Connection{ID: 3, Platform: "tiktok", AccessToken: "old", TokenExpiresAt: expired()}

	_, err := newManager(a, st).EnsureValid(context.Background(), conn, app, false)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindRefreshUnsupported, syncerr.KindOf(err))
	assert.False(t, errors.Is(err, syncerr.Auth))
	assert.Empty(t, st.updates)
}

func TestRefreshFailureIsAuth(t *testing.T) {
	a := &stubAdapter{plat: platform.Google, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
		return nil, syncerr.NewUpstream("google", "refresh_token", 400, errors.New("invalid_grant"))
	}}
	conn := &connection.Connection{ID: 4, Platform: "google", TokenExpiresAt: expired(),
		RefreshToken: sql.NullString{String: "r", Valid: true}}

	_, err := newManager(a, &memStore{}).EnsureValid(context.Background(), conn, app, false)
	assert.Equal(t, syncerr.KindAuth, syncerr.KindOf(err))
	assert.True(t, syncerr.ReconnectRequired(err))
}

func TestTransientRefreshFailureStaysUpstream(t *testing.T) {
	for _, cause := range []error{
		syncerr.NewUpstream("google", "refresh_token", 503, errors.New("backend unavailable")),
		syncerr.NewUpstream("google", "refresh_token", 429, errors.New("quota")),
		syncerr.NewTimeout("google", "refresh_token", context.DeadlineExceeded),
	} {
		a := &stubAdapter{plat: platform.Google, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
			return nil, cause
		}}
		st := &memStore{}
		conn := &connection.Connection{ID: 4, Platform: "google", TokenExpiresAt: expired(),
			RefreshToken: sql.NullString{String: "r", Valid: true}}

		_, err := newManager(a, st).EnsureValid(context.Background(), conn, app, false)
		require.Error(t, err)
		assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err), cause.Error())
		assert.False(t, syncerr.ReconnectRequired(err))
		assert.NotContains(t, err.Error(), "reconnect required")
		assert.Empty(t, st.updates)
	}
}

func TestMissingAppIsConfiguration(t *testing.T) {
	a := &stubAdapter{plat: platform.Google}
	conn := &connection.Connection{ID: 5, Platform: "google", TokenExpiresAt: expired()}

	_, err := newManager(a, &memStore{}).EnsureValid(context.Background(), conn, nil, false)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
	assert.Zero(t, a.calls.Load())
}

func TestPersistFailureIsPersistence(t *testing.T) {
	a := &stubAdapter{plat: platform.Google, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
		return &platform.Token{AccessToken: "x", ExpiresIn: time.Hour}, nil
	}}
	st := &memStore{err: errors.New("deadlock")}
	conn := &connection.Connection{ID: 6, Platform: "google", TokenExpiresAt: expired(),
		RefreshToken: sql.NullString{String: "r", Valid: true}}

	_, err := newManager(a, st).EnsureValid(context.Background(), conn, app, false)
	assert.Equal(t, syncerr.KindPersistence, syncerr.KindOf(err))
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	gate := make(chan struct{})
	a := &stubAdapter{plat: platform.Google, gate: gate, refresh: func(platform.RefreshRequest) (*platform.Token, error) {
		return &platform.Token{AccessToken: "shared", ExpiresIn: time.Hour}, nil
	}}
	st := &memStore{}
	m := newManager(a, st)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := &connection.Connection{ID: 7, Platform: "google", TokenExpiresAt: expired(),
				RefreshToken: sql.NullString{String: "r", Valid: true}}
			tok, err := m.EnsureValid(context.Background(), conn, app, false)
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	// Let every goroutine reach the in-flight call before releasing it.
	require.Eventually(t, func() bool { return a.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
	assert.Less(t, int(a.calls.Load()), n)
}
