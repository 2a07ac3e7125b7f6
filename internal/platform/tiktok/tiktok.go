// internal/platform/tiktok/tiktok.go
//
// TikTok Marketing API adapter.
//
// Context
// -------
// TikTok wraps every response in an envelope:
//
//	{"code":0,"message":"OK","request_id":"...","data":{"list":[...],
//	 "page_info":{"page":1,"total_page":3}}}
//
// A non-zero code is a failure even when the HTTP status is 200, so the
// adapter checks it on every page.
//
// Advertiser tokens are long-lived (about a year) and cannot be refreshed
// programmatically.  RefreshToken therefore always reports
// refresh_unsupported and the tenant has to reconnect.
package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
	"github.com/yanizio/adsync/internal/upstream"
)

const DefaultBaseURL = "https://business-api.tiktok.com/open_api/v1.3"

var reportMetrics = []string{"spend", "impressions", "clicks", "conversion", "total_purchase_value"}

// Config points the adapter at its endpoints.
type Config struct {
	BaseURL  string
	PageSize int
}

// Adapter implements platform.Adapter for TikTok.
type Adapter struct {
	cfg Config
	c   *upstream.Client
}

var _ platform.Adapter = (*Adapter)(nil)

func New(cfg Config, c *upstream.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, c: c}
}

func (a *Adapter) Platform() platform.Platform { return platform.TikTok }

type envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Data      struct {
		List     []json.RawMessage `json:"list"`
		PageInfo struct {
			Page      int `json:"page"`
			TotalPage int `json:"total_page"`
		} `json:"page_info"`
	} `json:"data"`
}

// FetchCampaigns lists every campaign of the advertiser.
func (a *Adapter) FetchCampaigns(ctx context.Context, acct platform.Account) ([]platform.RawRecord, error) {
	q := url.Values{"advertiser_id": {acct.AccountID}}
	return a.collect(ctx, "fetch_campaigns", acct, "/campaign/get/", q)
}

// FetchMetrics pulls the BASIC integrated report at campaign x day grain.
func (a *Adapter) FetchMetrics(ctx context.Context, acct platform.Account, window platform.DateRange) ([]platform.RawRecord, error) {
	dims, _ := json.Marshal([]string{"campaign_id", "stat_time_day"})
	mets, _ := json.Marshal(reportMetrics)
	q := url.Values{
		"advertiser_id": {acct.AccountID},
		"report_type":   {"BASIC"},
		"data_level":    {"AUCTION_CAMPAIGN"},
		"dimensions":    {string(dims)},
		"metrics":       {string(mets)},
		"start_date":    {window.Since.Format("2006-01-02")},
		"end_date":      {window.Until.Format("2006-01-02")},
	}
	return a.collect(ctx, "fetch_metrics", acct, "/report/integrated/get/", q)
}

func (a *Adapter) collect(ctx context.Context, op string, acct platform.Account, path string, q url.Values) ([]platform.RawRecord, error) {
	hdr := http.Header{}
	hdr.Set("Access-Token", acct.AccessToken)
	q.Set("page_size", strconv.Itoa(a.cfg.PageSize))

	var out []platform.RawRecord
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		var env envelope
		if err := a.c.GetJSON(ctx, op, a.cfg.BaseURL+path+"?"+q.Encode(), hdr, &env); err != nil {
			return nil, err
		}
		if env.Code != 0 {
			return nil, syncerr.NewUpstream(string(platform.TikTok), op, 0,
				fmt.Errorf("api code %d: %s (request %s)", env.Code, env.Message, env.RequestID))
		}
		for _, item := range env.Data.List {
			out = append(out, platform.RawRecord{Platform: platform.TikTok, Data: item})
		}
		if page >= env.Data.PageInfo.TotalPage || len(env.Data.List) == 0 {
			return out, nil
		}
	}
}

// RefreshToken always fails: TikTok has no refresh flow for advertiser tokens.
func (a *Adapter) RefreshToken(context.Context, platform.RefreshRequest) (*platform.Token, error) {
	return nil, syncerr.NewRefreshUnsupported(string(platform.TikTok))
}
