// internal/credential/service.go
//
// Credential vault: per-tenant OAuth application settings.
//
// Context
// -------
// Each tenant registers its own OAuth app per platform.  The row in
// `oauth_app` holds the public half (client id, app id, redirect URI, flags)
// while the client secret and Google developer token are written to the
// secret store under `<base>/tenant/<tenant_id>/<platform>`.
//
// Upsert rules
// ------------
//   - SecretUnchanged in ClientSecret or DeveloperToken keeps the stored
//     value.  An empty ClientSecret on an existing app does the same.
//   - A new app needs a real client secret.
//   - An empty DeveloperToken clears it.
//   - IsVerified resets whenever the client id or secret changes.
//   - Secrets are written before the row so a row never points at a
//     missing secret.
//
// Notes
// -----
//   - Role gating happens in the API layer, not here.
//   - Every mutation appends one audit entry.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/audit"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/vault"
)

var (
	// ErrNotFound is returned when the tenant has no app for a platform.
	ErrNotFound = errors.New("credential: oauth app not found")
	// ErrInvalid wraps every input rejection.
	ErrInvalid = errors.New("credential: invalid input")
)

const (
	keyClientSecret   = "client_secret"
	keyDeveloperToken = "developer_token"
)

// SecretStore is the subset of the Vault client the service uses.
type SecretStore interface {
	ReadKV(ctx context.Context, path string) (map[string]string, error)
	WriteKV(ctx context.Context, path string, data map[string]string) error
	DeleteKV(ctx context.Context, path string) error
}

// Service is safe for concurrent use.
type Service struct {
	repo     repository
	secrets  SecretStore
	base     string // e.g. "secret/adsync"
	audit    audit.Recorder
	log      *zap.SugaredLogger
	validate *validator.Validate
}

// NewService wires the repository, the secret store rooted at base, and
// the audit recorder.  A nil recorder disables auditing.
func NewService(db *sqlx.DB, secrets SecretStore, base string, rec audit.Recorder, log *zap.SugaredLogger) *Service {
	if rec == nil {
		rec = audit.Discard{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		repo:     repository{db: db},
		secrets:  secrets,
		base:     base,
		audit:    rec,
		log:      log,
		validate: validator.New(),
	}
}

func (s *Service) secretPath(tenantID uint64, p platform.Platform) string {
	return fmt.Sprintf("%s/tenant/%d/%s", s.base, tenantID, p)
}

// Get loads one app including its secrets.
func (s *Service) Get(ctx context.Context, tenantID uint64, p platform.Platform) (*App, error) {
	a, err := s.repo.get(ctx, tenantID, string(p))
	if err != nil {
		return nil, err
	}
	sec, err := s.secrets.ReadKV(ctx, s.secretPath(tenantID, p))
	switch {
	case errors.Is(err, vault.ErrNotFound):
		s.log.Warnw("oauth app has no stored secret", "tenant", tenantID, "platform", p)
	case err != nil:
		return nil, fmt.Errorf("read oauth app secret: %w", err)
	default:
		a.ClientSecret = sec[keyClientSecret]
		a.DeveloperToken = sec[keyDeveloperToken]
	}
	return a, nil
}

// List returns every app of the tenant without secrets.
func (s *Service) List(ctx context.Context, tenantID uint64) ([]App, error) {
	return s.repo.list(ctx, tenantID)
}

// Upsert creates or updates the tenant's app for platform.  The returned
// App is masked.
func (s *Service) Upsert(ctx context.Context, actor string, tenantID uint64, platformKey string, in UpsertInput) (*App, error) {
	p, err := platform.Parse(platformKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	existing, err := s.Get(ctx, tenantID, p)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := App{
		TenantID:    tenantID,
		Platform:    string(p),
		ClientID:    in.ClientID,
		AppID:       in.AppID,
		RedirectURI: in.RedirectURI,
		IsActive:    true,
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}

	keepSecret := in.ClientSecret == SecretUnchanged || in.ClientSecret == ""
	switch {
	case existing == nil && keepSecret:
		return nil, fmt.Errorf("%w: client_secret is required for a new app", ErrInvalid)
	case keepSecret:
		next.ClientSecret = existing.ClientSecret
	default:
		next.ClientSecret = in.ClientSecret
	}

	if in.DeveloperToken == SecretUnchanged {
		if existing != nil {
			next.DeveloperToken = existing.DeveloperToken
		}
	} else {
		next.DeveloperToken = in.DeveloperToken
	}

	if existing != nil {
		next.ID = existing.ID
		next.CreatedAt = existing.CreatedAt
		next.IsVerified = existing.IsVerified &&
			existing.ClientID == next.ClientID &&
			existing.ClientSecret == next.ClientSecret
	}

	sec := map[string]string{keyClientSecret: next.ClientSecret}
	if next.DeveloperToken != "" {
		sec[keyDeveloperToken] = next.DeveloperToken
	}
	if err := s.secrets.WriteKV(ctx, s.secretPath(tenantID, p), sec); err != nil {
		return nil, fmt.Errorf("write oauth app secret: %w", err)
	}
	if err := s.repo.upsert(ctx, &next); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionOAuthAppUpsert,
		Entity:   "oauth_app",
		EntityID: string(p),
		Platform: string(p),
	})
	s.log.Infow("oauth app saved", "tenant", tenantID, "platform", p, "actor", actor, "created", existing == nil)

	masked := next.Masked()
	return &masked, nil
}

// Delete removes the app row and its secrets.
func (s *Service) Delete(ctx context.Context, actor string, tenantID uint64, platformKey string) error {
	p, err := platform.Parse(platformKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.repo.delete(ctx, tenantID, string(p)); err != nil {
		return err
	}
	if err := s.secrets.DeleteKV(ctx, s.secretPath(tenantID, p)); err != nil && !errors.Is(err, vault.ErrNotFound) {
		s.log.Errorw("delete oauth app secret", "tenant", tenantID, "platform", p, "err", err)
	}

	s.audit.Record(ctx, audit.Entry{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionOAuthAppDelete,
		Entity:   "oauth_app",
		EntityID: string(p),
		Platform: string(p),
	})
	s.log.Infow("oauth app deleted", "tenant", tenantID, "platform", p, "actor", actor)
	return nil
}
