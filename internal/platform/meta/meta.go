// internal/platform/meta/meta.go
//
// Meta (Facebook/Instagram) Marketing API adapter.
//
// Context
// -------
// Campaigns come from `act_<id>/campaigns`, metrics from `act_<id>/insights`
// with level=campaign and time_increment=1.  Graph API pages through a
// `paging.next` URL that already carries every query parameter, so the
// adapter just follows it until it disappears.
//
// Budgets arrive in minor currency units (cents) and spend arrives as a
// decimal string in whole units.  Both are passed through raw.
//
// Token refresh
// -------------
// Meta has no refresh_token grant.  A long-lived user token is extended by
// exchanging the current token through `fb_exchange_token`.
//
// Notes
// -----
//   - The access token travels in an Authorization: Bearer header and the
//     exchange is a form POST, so neither reaches a request URL we build.
//   - Every call is signed with appsecret_proof (HMAC-SHA256 of the access
//     token keyed by the app secret) when the secret is known.
package meta

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v19.0"
)

const (
	campaignFields = "id,name,status,effective_status,objective,daily_budget,lifetime_budget,start_time,stop_time"
	insightFields  = "campaign_id,date_start,date_stop,impressions,clicks,spend,actions,action_values"
)

// Config points the adapter at its endpoints.
type Config struct {
	BaseURL    string
	APIVersion string
	PageSize   int
}

// Adapter implements platform.Adapter for Meta.
type Adapter struct {
	cfg Config
	c   *upstream.Client
}

var _ platform.Adapter = (*Adapter)(nil)

func New(cfg Config, c *upstream.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, c: c}
}

func (a *Adapter) Platform() platform.Platform { return platform.Meta }

type page struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchCampaigns lists every campaign of the ad account.
func (a *Adapter) FetchCampaigns(ctx context.Context, acct platform.Account) ([]platform.RawRecord, error) {
	q := url.Values{
		"fields": {campaignFields},
		"limit":  {fmt.Sprint(a.cfg.PageSize)},
	}
	return a.collect(ctx, "fetch_campaigns", acct, a.accountURL(acct, "campaigns", q))
}

// FetchMetrics returns daily campaign-level insights for window.
func (a *Adapter) FetchMetrics(ctx context.Context, acct platform.Account, window platform.DateRange) ([]platform.RawRecord, error) {
	tr, _ := json.Marshal(map[string]string{
		"since": window.Since.Format("2006-01-02"),
		"until": window.Until.Format("2006-01-02"),
	})
	q := url.Values{
		"level":          {"campaign"},
		"time_increment": {"1"},
		"time_range":     {string(tr)},
		"fields":         {insightFields},
		"limit":          {fmt.Sprint(a.cfg.PageSize)},
	}
	return a.collect(ctx, "fetch_metrics", acct, a.accountURL(acct, "insights", q))
}

func (a *Adapter) accountURL(acct platform.Account, edge string, q url.Values) string {
	id := strings.TrimPrefix(acct.AccountID, "act_")
	if acct.App.ClientSecret != "" {
		q.Set("appsecret_proof", AppSecretProof(acct.AccessToken, acct.App.ClientSecret))
	}
	return fmt.Sprintf("%s/%s/act_%s/%s?%s", a.cfg.BaseURL, a.cfg.APIVersion, id, edge, q.Encode())
}

func (a *Adapter) collect(ctx context.Context, op string, acct platform.Account, next string) ([]platform.RawRecord, error) {
	hdr := http.Header{"Authorization": {"Bearer " + acct.AccessToken}}
	var out []platform.RawRecord
	seen := map[string]bool{}
	for next != "" {
		if seen[next] {
			return nil, syncerr.NewUpstream(string(platform.Meta), op, 0,
				fmt.Errorf("pagination loop at %s", upstream.RedactURL(next)))
		}
		seen[next] = true

		var p page
		if err := a.c.GetJSON(ctx, op, next, hdr, &p); err != nil {
			return nil, err
		}
		for _, d := range p.Data {
			out = append(out, platform.RawRecord{Platform: platform.Meta, Data: d})
		}
		next = p.Paging.Next
	}
	return out, nil
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RefreshToken exchanges the current long-lived token for a fresh one.
func (a *Adapter) RefreshToken(ctx context.Context, req platform.RefreshRequest) (*platform.Token, error) {
	current := req.AccessToken
	if current == "" {
		current = req.RefreshToken
	}
	form := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {req.App.ClientID},
		"client_secret":     {req.App.ClientSecret},
		"fb_exchange_token": {current},
	}
	endpoint := fmt.Sprintf("%s/%s/oauth/access_token", a.cfg.BaseURL, a.cfg.APIVersion)

	var er exchangeResponse
	if err := a.c.PostForm(ctx, "refresh_token", endpoint, form, &er); err != nil {
		return nil, err
	}
	if er.AccessToken == "" {
		return nil, syncerr.NewUpstream(string(platform.Meta), "refresh_token", 0,
			fmt.Errorf("exchange returned no access_token"))
	}
	return &platform.Token{
		AccessToken: er.AccessToken,
		ExpiresIn:   time.Duration(er.ExpiresIn) * time.Second,
	}, nil
}

// AppSecretProof is hex(HMAC-SHA256(key=appSecret, msg=accessToken)).
func AppSecretProof(accessToken, appSecret string) string {
	m := hmac.New(sha256.New, []byte(appSecret))
	m.Write([]byte(accessToken))
	return hex.EncodeToString(m.Sum(nil))
}
