// Package platform defines the capability contract every ad-network adapter
// implements and the registry the orchestrator selects adapters from.  The
// orchestrator never imports a concrete adapter package.
package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Platform is the canonical platform key stored in every table.
type Platform string

const (
	Google   Platform = "google"
	Meta     Platform = "meta"
	TikTok   Platform = "tiktok"
	LinkedIn Platform = "linkedin"
)

// Supported lists the platforms the engine can sync, in display order.
var Supported = []Platform{Google, Meta, TikTok, LinkedIn}

// Parse validates s against Supported.  Matching is case-insensitive.
func Parse(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, sp := range Supported {
		if p == sp {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

func (p Platform) String() string { return string(p) }

// AppCredentials is the slice of a tenant's OAuth app an adapter needs.
type AppCredentials struct {
	ClientID       string
	ClientSecret   string
	DeveloperToken string // Google Ads only
	AppID          string
}

// Account addresses one authorized ad account.
type Account struct {
	AccountID   string
	AccessToken string
	App         AppCredentials
}

// DateRange is inclusive on both ends, at day precision.
type DateRange struct {
	Since time.Time
	Until time.Time
}

// LastDays returns the window [now-days+1, now] truncated to UTC days.
func LastDays(now time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	y, m, d := now.UTC().Date()
	until := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return DateRange{Since: until.AddDate(0, 0, -(days - 1)), Until: until}
}

// RawRecord is one platform-native object, exactly as the upstream API
// returned it.  Units and field names are not converted.
type RawRecord struct {
	Platform Platform
	Data     json.RawMessage
}

// RefreshRequest carries what a refresh protocol needs.
type RefreshRequest struct {
	AccessToken  string
	RefreshToken string
	App          AppCredentials
}

// Token is a freshly issued credential.  RefreshToken is empty when the
// platform did not rotate it.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}
