package credential

import (
	"time"

	"github.com/yanizio/adsync/internal/platform"
)

// SecretUnchanged is the mask returned in place of stored secrets.  Sending
// it back on upsert keeps the stored value, so read-modify-write cycles
// never require a secret the caller cannot read.
const SecretUnchanged = "********"

// App is one tenant's OAuth application for one platform.  Non-secret
// fields live in `oauth_app`; ClientSecret and DeveloperToken live in the
// secret store and are only populated by Service.Get.
type App struct {
	ID          uint64    `db:"id"          json:"id"`
	TenantID    uint64    `db:"tenant_id"   json:"tenant_id"`
	Platform    string    `db:"platform"    json:"platform"`
	ClientID    string    `db:"client_id"   json:"client_id"`
	AppID       string    `db:"app_id"      json:"app_id,omitempty"`
	RedirectURI string    `db:"redirect_uri" json:"redirect_uri,omitempty"`
	IsActive    bool      `db:"is_active"   json:"is_active"`
	IsVerified  bool      `db:"is_verified" json:"is_verified"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`

	ClientSecret   string `db:"-" json:"client_secret,omitempty"`
	DeveloperToken string `db:"-" json:"developer_token,omitempty"`
}

// Credentials is the adapter-facing view.
func (a *App) Credentials() platform.AppCredentials {
	return platform.AppCredentials{
		ClientID:       a.ClientID,
		ClientSecret:   a.ClientSecret,
		DeveloperToken: a.DeveloperToken,
		AppID:          a.AppID,
	}
}

// Masked returns a copy safe to serialize: stored secrets become
// SecretUnchanged, absent ones stay empty.
func (a App) Masked() App {
	if a.ClientSecret != "" {
		a.ClientSecret = SecretUnchanged
	}
	if a.DeveloperToken != "" {
		a.DeveloperToken = SecretUnchanged
	}
	return a
}

// UpsertInput is the caller-supplied part of an upsert.
type UpsertInput struct {
	ClientID       string `json:"client_id"       validate:"required,max=255"`
	ClientSecret   string `json:"client_secret"   validate:"max=512"`
	DeveloperToken string `json:"developer_token" validate:"max=255"`
	AppID          string `json:"app_id"          validate:"max=255"`
	RedirectURI    string `json:"redirect_uri"    validate:"omitempty,url,max=1024"`
	IsActive       *bool  `json:"is_active"`
}
