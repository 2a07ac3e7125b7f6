package linkedin

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
		Platform:       "linkedin",
		RatePerSecond:  1000,
		Burst:          10,
		InitialBackoff: time.Millisecond,
		MaxElapsed:     50 * time.Millisecond,
	}, nil, nil)
	return New(Config{BaseURL: srvURL, TokenURL: srvURL + "/oauth/v2/accessToken", APIVersion: "202401"}, c)
}

var acct = platform.Account{AccountID: "urn:li:sponsoredAccount:510", AccessToken: "AQX"}

func TestFetchCampaignsPagesByToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adAccounts/510/adCampaigns", r.URL.Path)
		assert.Equal(t, "Bearer AQX", r.Header.Get("Authorization"))
		assert.Equal(t, "202401", r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"elements":[{"id":1,"name":"A","status":"ACTIVE"}],"metadata":{"nextPageToken":"t2"}}`))
			return
		}
		w.Write([]byte(`{"elements":[{"id":2,"name":"B","status":"PAUSED"}],"metadata":{}}`))
	}))
	defer srv.Close()

	recs, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestFetchMetricsRestliQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adAnalytics", r.URL.Path)
		raw := r.URL.RawQuery
		assert.Contains(t, raw, "dateRange=(start:(year:2025,month:1,day:1),end:(year:2025,month:1,day:30))")
		assert.Contains(t, raw, "accounts=List(urn%3Ali%3AsponsoredAccount%3A510)")
		assert.Contains(t, raw, "timeGranularity=DAILY")
		w.Write([]byte(`{"elements":[{"pivotValues":["urn:li:sponsoredCampaign:1"],"costInLocalCurrency":"4.2"}]}`))
	}))
	defer srv.Close()

	window := platform.DateRange{
		Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC),
	}
	recs, err := newAdapter(srv.URL).FetchMetrics(context.Background(), acct, window)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, platform.LinkedIn, recs[0].Platform)
}

func TestRefreshTokenRotates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		w.Write([]byte(`{"access_token":"AQY","expires_in":5184000,"refresh_token":"new-refresh","refresh_token_expires_in":31536000}`))
	}))
	defer srv.Close()

	tok, err := newAdapter(srv.URL).RefreshToken(context.Background(), platform.RefreshRequest{
		RefreshToken: "old-refresh",
		App:          platform.AppCredentials{ClientID: "c", ClientSecret: "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, "AQY", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
}

func TestRefreshRejectedIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL).RefreshToken(context.Background(), platform.RefreshRequest{RefreshToken: "x"})
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err))
}

func TestAccountID(t *testing.T) {
	assert.Equal(t, "510", AccountID("urn:li:sponsoredAccount:510"))
	assert.Equal(t, "510", AccountID("510"))
}
