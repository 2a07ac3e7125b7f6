package tiktok

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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
		Platform:       "tiktok",
		RatePerSecond:  1000,
		Burst:          10,
		InitialBackoff: time.Millisecond,
		MaxElapsed:     50 * time.Millisecond,
	}, nil, nil)
	return New(Config{BaseURL: srvURL, PageSize: 2}, c)
}

var acct = platform.Account{AccountID: "700", AccessToken: "tt-token"}

func TestFetchCampaignsWalksPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/campaign/get/", r.URL.Path)
		assert.Equal(t, "tt-token", r.Header.Get("Access-Token"))
		assert.Equal(t, "700", r.URL.Query().Get("advertiser_id"))
		assert.Equal(t, "2", r.URL.Query().Get("page_size"))
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"code":0,"message":"OK","data":{"list":[{"campaign_id":"1"},{"campaign_id":"2"}],"page_info":{"page":1,"total_page":2}}}`))
		case "2":
			w.Write([]byte(`{"code":0,"message":"OK","data":{"list":[{"campaign_id":"3"}],"page_info":{"page":2,"total_page":2}}}`))
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	recs, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestFetchMetricsReportParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/report/integrated/get/", r.URL.Path)
		assert.Equal(t, "AUCTION_CAMPAIGN", q.Get("data_level"))
		assert.JSONEq(t, `["campaign_id","stat_time_day"]`, q.Get("dimensions"))
		assert.Equal(t, "2025-02-01", q.Get("start_date"))
		assert.Equal(t, "2025-02-28", q.Get("end_date"))
		w.Write([]byte(`{"code":0,"data":{"list":[{"dimensions":{"campaign_id":"1","stat_time_day":"2025-02-01 00:00:00"},"metrics":{"spend":"3.50"}}],"page_info":{"total_page":1}}}`))
	}))
	defer srv.Close()

	window := platform.DateRange{
		Since: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
	}
	recs, err := newAdapter(srv.URL).FetchMetrics(context.Background(), acct, window)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestNonZeroCodeIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":40105,"message":"Access token is incorrect or has been revoked.","request_id":"r1"}`))
	}))
	defer srv.Close()

	_, err := newAdapter(srv.URL).FetchCampaigns(context.Background(), acct)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err))
	assert.Contains(t, err.Error(), "40105")
}

func TestRefreshTokenUnsupportedWithoutNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	tok, err := newAdapter(srv.URL).RefreshToken(context.Background(), platform.RefreshRequest{AccessToken: "tt-token"})
	assert.Nil(t, tok)
	assert.True(t, errors.Is(err, syncerr.RefreshUnsupported))
	assert.True(t, syncerr.ReconnectRequired(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}
