// internal/orchestrator/orchestrator.go
//
// Sync orchestrator: drives one connection, one tenant, or every tenant
// through token → campaigns → metrics.
//
// Context
// -------
// The orchestrator owns no state of its own.  It reads connections from the
// registry, credentials from the credential service, tokens from the token
// manager, raw rows from the platform adapters, and writes canonical rows to
// the store.  Every collaborator is an interface declared here so tests can
// wire fakes.
//
// Concurrency
// -----------
//   - One bounded pool per platform (Config.WorkersPerPlatform).  A slow
//     platform only occupies its own pool.
//   - Each connection runs under Config.ConnectionTimeout.
//   - Status write-back uses a context detached from the pipeline deadline,
//     so a timed-out run still records `error`.
//   - A run starts only after claiming its connection.  A connection held
//     by another run is skipped and its row is left alone.
//
// Notes
// -----
//   - SyncConnection never panics and never returns an error; failures are
//     carried in Result.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/canonical"
	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/syncerr"
)

/* ------------------------------------------------------------------ */
/* collaborators                                                      */
/* ------------------------------------------------------------------ */

// Connections is the registry surface the pipeline needs.
type Connections interface {
	ListActive(ctx context.Context, tenantID uint64, platform string) ([]connection.Connection, error)
	Get(ctx context.Context, id uint64) (*connection.Connection, error)
	Claim(ctx context.Context, id uint64) error
	SetStatus(ctx context.Context, id uint64, status connection.Status, msg string) error
	RecordSuccess(ctx context.Context, id uint64, at time.Time) error
}

// Apps loads a tenant's OAuth app with secrets.
type Apps interface {
	Get(ctx context.Context, tenantID uint64, p platform.Platform) (*credential.App, error)
}

// Tokens hands out usable access tokens.
type Tokens interface {
	EnsureValid(ctx context.Context, conn *connection.Connection, app *platform.AppCredentials, force bool) (string, error)
}

// Adapters selects the platform implementation.
type Adapters interface {
	Lookup(p platform.Platform) (platform.Adapter, error)
}

// Store is the canonical sink.
type Store interface {
	UpsertCampaigns(ctx context.Context, rows []canonical.Campaign) (int, error)
	CampaignLookup(ctx context.Context, tenantID uint64, platform string) (canonical.Lookup, error)
	UpsertMetrics(ctx context.Context, rows []canonical.MetricsRecord) (int, error)
}

// Tenants enumerates tenants for the all-tenants driver.
type Tenants interface {
	ActiveIDs(ctx context.Context) ([]uint64, error)
}

/* ------------------------------------------------------------------ */
/* options and results                                                */
/* ------------------------------------------------------------------ */

// Options narrow and tune a run.
type Options struct {
	Platform     string // empty = every platform
	DaysBack     int    // 0 = Config.DaysBack
	ForceRefresh bool
}

// Config holds engine-wide settings.
type Config struct {
	WorkersPerPlatform int
	ConnectionTimeout  time.Duration
	StatusTimeout      time.Duration
	DaysBack           int
}

func (c *Config) defaults() {
	if c.WorkersPerPlatform <= 0 {
		c.WorkersPerPlatform = 4
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 10 * time.Minute
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 10 * time.Second
	}
	if c.DaysBack <= 0 {
		c.DaysBack = 30
	}
}

// Result is the outcome of one connection run.
type Result struct {
	RunID           string       `json:"run_id"`
	TenantID        uint64       `json:"tenant_id"`
	ConnectionID    uint64       `json:"connection_id"`
	Platform        string       `json:"platform"`
	AccountID       string       `json:"account_id"`
	Success         bool         `json:"success"`
	Skipped         bool         `json:"skipped,omitempty"`
	CampaignsSynced int          `json:"campaigns_synced"`
	MetricsSynced   int          `json:"metrics_synced"`
	MetricsDropped  int          `json:"metrics_dropped"`
	Errors          []string     `json:"errors,omitempty"`
	ErrorKind       syncerr.Kind `json:"error_kind,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	Duration        string       `json:"duration"`
}

/* ------------------------------------------------------------------ */
/* orchestrator                                                       */
/* ------------------------------------------------------------------ */

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	conns    Connections
	apps     Apps
	tokens   Tokens
	adapters Adapters
	store    Store
	tenants  Tenants
	cfg      Config
	log      *zap.SugaredLogger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Deps bundles the collaborators for New.
type Deps struct {
	Connections Connections
	Apps        Apps
	Tokens      Tokens
	Adapters    Adapters
	Store       Store
	Tenants     Tenants
}

func New(d Deps, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	cfg.defaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		conns:    d.Connections,
		apps:     d.Apps,
		tokens:   d.Tokens,
		adapters: d.Adapters,
		store:    d.Store,
		tenants:  d.Tenants,
		cfg:      cfg,
		log:      log,
		Now:      time.Now,
	}
}

func (o *Orchestrator) daysBack(opts Options) int {
	if opts.DaysBack > 0 {
		return opts.DaysBack
	}
	return o.cfg.DaysBack
}
