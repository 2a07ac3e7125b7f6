// internal/platform/google/google.go
//
// Google Ads adapter.
//
// Context
// -------
// Talks to the Google Ads REST surface (`googleAds:search` with GAQL) and
// the Google OAuth token endpoint.  Rows come back in Google's nested
// shape, for example:
//
//	{"campaign":{"id":"123"},"segments":{"date":"2025-01-01"},
//	 "metrics":{"clicks":"100","costMicros":"5000000",...}}
//
// and are handed on untouched.  Costs stay in micros; the normalizer owns
// the conversion.
//
// Notes
// -----
//   - Customer ids are accepted with or without dashes.
//   - A tenant's developer token is mandatory for every Ads call.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
	"github.com/yanizio/adsync/internal/upstream"
)

const (
	DefaultBaseURL    = "https://googleads.googleapis.com"
	DefaultTokenURL   = "https://oauth2.googleapis.com/token"
	DefaultAPIVersion = "v17"
)

const campaignQuery = `SELECT campaign.id, campaign.name, campaign.status, ` +
	`campaign.advertising_channel_type, campaign.start_date, campaign.end_date, ` +
	`campaign_budget.amount_micros, campaign_budget.total_amount_micros FROM campaign`

const metricsQuery = `SELECT campaign.id, segments.date, metrics.impressions, ` +
	`metrics.clicks, metrics.conversions, metrics.conversions_value, metrics.cost_micros ` +
	`FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'`

// Config points the adapter at its endpoints.
type Config struct {
	BaseURL    string
	TokenURL   string
	APIVersion string
}

// Adapter implements platform.Adapter for Google Ads.
type Adapter struct {
	cfg Config
	c   *upstream.Client
}

var _ platform.Adapter = (*Adapter)(nil)

// New returns a Google Ads adapter.  Empty config fields take defaults.
func New(cfg Config, c *upstream.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, c: c}
}

func (a *Adapter) Platform() platform.Platform { return platform.Google }

type searchResponse struct {
	Results       []json.RawMessage `json:"results"`
	NextPageToken string            `json:"nextPageToken"`
}

// FetchCampaigns returns every campaign row of the customer account.
func (a *Adapter) FetchCampaigns(ctx context.Context, acct platform.Account) ([]platform.RawRecord, error) {
	return a.search(ctx, "fetch_campaigns", acct, campaignQuery)
}

// FetchMetrics returns one row per campaign per day inside window.
func (a *Adapter) FetchMetrics(ctx context.Context, acct platform.Account, window platform.DateRange) ([]platform.RawRecord, error) {
	q := fmt.Sprintf(metricsQuery, window.Since.Format("2006-01-02"), window.Until.Format("2006-01-02"))
	return a.search(ctx, "fetch_metrics", acct, q)
}

func (a *Adapter) search(ctx context.Context, op string, acct platform.Account, query string) ([]platform.RawRecord, error) {
	if acct.App.DeveloperToken == "" {
		return nil, syncerr.NewConfiguration(string(platform.Google), "developer token missing from OAuth app")
	}
	customer := strings.ReplaceAll(acct.AccountID, "-", "")
	endpoint := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", a.cfg.BaseURL, a.cfg.APIVersion, customer)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+acct.AccessToken)
	hdr.Set("developer-token", acct.App.DeveloperToken)

	var out []platform.RawRecord
	pageToken := ""
	for {
		body := map[string]string{"query": query}
		if pageToken != "" {
			body["pageToken"] = pageToken
		}
		var resp searchResponse
		if err := a.c.PostJSON(ctx, op, endpoint, hdr, body, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			out = append(out, platform.RawRecord{Platform: platform.Google, Data: r})
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken runs the standard refresh_token grant.
func (a *Adapter) RefreshToken(ctx context.Context, req platform.RefreshRequest) (*platform.Token, error) {
	if req.RefreshToken == "" {
		return nil, syncerr.NewAuth(string(platform.Google), "no refresh token stored, reconnect required", nil)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {req.RefreshToken},
		"client_id":     {req.App.ClientID},
		"client_secret": {req.App.ClientSecret},
	}
	var tr tokenResponse
	if err := a.c.PostForm(ctx, "refresh_token", a.cfg.TokenURL, form, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, syncerr.NewUpstream(string(platform.Google), "refresh_token", 0,
			fmt.Errorf("token endpoint returned no access_token"))
	}
	return &platform.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}
