package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
	"github.com/yanizio/adsync/internal/upstream"
)

func newAdapter(srvURL string) *Adapter {
	c := upstream.New(upstream.Config{
		Platform:       "meta",
		RatePerSecond:  1000,
		Burst:          10,
		InitialBackoff: time.Millisecond,
		MaxElapsed:     50 * time.Millisecond,
	}, nil, nil)
	return New(Config{BaseURL: srvURL, APIVersion: "v19.0"}, c)
}

var acct = platform.Account{
	AccountID:   "act_42",
	AccessToken: "EAAB",
	App:         platform.AppCredentials{ClientID: "app", ClientSecret: "shh"},
}

func TestFetchCampaignsFollowsPaging(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_42/campaigns", r.URL.Path)
		assert.Equal(t, "Bearer EAAB", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("access_token"))
		assert.Equal(t, AppSecretProof("EAAB", "shh"), r.URL.Query().Get("appsecret_proof"))

		if r.URL.Query().Get("after") == "" {
			w.Write([]byte(`{"data":[{"id":"1","name":"A","status":"ACTIVE","daily_budget":"2500"}],` +
				`"paging":{"next":"` + srv.URL + `/v19.0/act_42/campaigns?access_token=EAAB&appsecret_proof=` +
				AppSecretProof("EAAB", "shh") + `&after=c1"}}`))
			return
		}
		w.Write([]byte(`{"data":[{"id":"2","name":"B","status":"PAUSED"}],"paging":{}}`))
	}))
	defer srv.Close()

	recs, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, platform.Meta, recs[1].Platform)
}

func TestFetchMetricsRequestsDailyCampaignInsights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v19.0/act_42/insights", r.URL.Path)
		assert.Equal(t, "campaign", q.Get("level"))
		assert.Equal(t, "1", q.Get("time_increment"))
		assert.JSONEq(t, `{"since":"2025-03-01","until":"2025-03-07"}`, q.Get("time_range"))
		w.Write([]byte(`{"data":[{"campaign_id":"1","date_start":"2025-03-01","spend":"12.34"}]}`))
	}))
	defer srv.Close()

	window := platform.DateRange{
		Since: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC),
	}
	recs, err := newAdapter(srv.URL).FetchMetrics(context.Background(), acct, window)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestPagingLoopIsRejected(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"paging":{"next":"` + srv.URL + `/loop?access_token=EAAB"}}`))
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err))
	assert.NotContains(t, err.Error(), "EAAB")
}

func TestRefreshTokenExchangesCurrentToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/oauth/access_token", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "fb_exchange_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "EAAB", r.PostForm.Get("fb_exchange_token"))
		assert.Equal(t, "shh", r.PostForm.Get("client_secret"))
		w.Write([]byte(`{"access_token":"EAAC","token_type":"bearer","expires_in":5183944}`))
	}))
	defer srv.Close()

	tok, err := newAdapter(srv.URL).RefreshToken(context.Background(), platform.RefreshRequest{
		AccessToken: "EAAB",
		App:         acct.App,
	})
	require.NoError(t, err)
	assert.Equal(t, "EAAC", tok.AccessToken)
	assert.Equal(t, 5183944*time.Second, tok.ExpiresIn)
}

// hangUp accepts each request and drops the connection without a response,
// so the client sees a transport error that carries the request URL.
func hangUp(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, _, err := hj.Hijack()
		if !assert.NoError(t, err) {
			return
		}
		conn.Close()
	}))
}

func TestTransportFailureKeepsCredentialsOutOfErrors(t *testing.T) {
	srv := hangUp(t)
	defer srv.Close()
	a := newAdapter(srv.URL)
	proof := AppSecretProof("EAAB", "shh")

	_, err := a.FetchCampaigns(context.Background(), acct)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err))
	assert.NotContains(t, err.Error(), "EAAB")
	assert.NotContains(t, err.Error(), proof)

	_, err = a.RefreshToken(context.Background(), platform.RefreshRequest{
		AccessToken: "EAAB",
		App:         acct.App,
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "EAAB")
	assert.NotContains(t, err.Error(), "shh")
}

func TestPagingURLCredentialsAreMaskedOnFailure(t *testing.T) {
	dead := hangUp(t)
	defer dead.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[],"paging":{"next":"` + dead.URL + `/v19.0/act_42/campaigns?access_token=EAAB&after=c1"}}`))
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "EAAB")
}

func TestAppSecretProofIsStable(t *testing.T) {
	a := AppSecretProof("token", "secret")
	assert.Len(t, a, 64)
	assert.Equal(t, a, AppSecretProof("token", "secret"))
	assert.NotEqual(t, a, AppSecretProof("token", "other"))
}
