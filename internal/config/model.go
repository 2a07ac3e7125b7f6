// internal/config/model.go
//
// Typed configuration model for adsync.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `conf/.env`                     dotenv values,
//   - `conf/adsync.yaml`                       primary static file,
//   - `ADSYNC_`-prefixed environment overrides highest precedence.
//
// Any value whose string begins with `vault:` is resolved through the
// Vault client before unmarshalling, so the model never stores Vault
// URIs, only plain strings.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   - Durations accept Go syntax ("90s", "10m").
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import (
	"fmt"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The template stays in YAML so operators can tweak host, port, or flags
// without touching Vault.  The password is usually a `vault:` reference
// and is spliced into the single `%s` verb by DSN().
type Database struct {
	DSNTemplate     string        `koanf:"dsn"               validate:"required,dsn_secret"`
	Password        string        `koanf:"password"          validate:"required"`
	MaxOpen         int           `koanf:"max_open"          validate:"gte=0"`
	MaxIdle         int           `koanf:"max_idle"          validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"   validate:"gte=0"`
	Migrate         bool          `koanf:"migrate"`
}

// DSN returns the template with the password filled in.
func (d Database) DSN() string { return fmt.Sprintf(d.DSNTemplate, d.Password) }

//
// Vault section
//

// Vault locates tenant OAuth app secrets.  Address and token come from the
// standard VAULT_ADDR and VAULT_TOKEN variables.
type Vault struct {
	SecretsPath string `koanf:"secrets_path" validate:"required"`
}

//
// Sync section
//

// Sync tunes the orchestrator and the scheduler.  An empty Schedule
// disables periodic runs.
type Sync struct {
	Schedule           string        `koanf:"schedule"             validate:"omitempty,cron_expression"`
	DaysBack           int           `koanf:"days_back"            validate:"gte=1,lte=365"`
	WorkersPerPlatform int           `koanf:"workers_per_platform" validate:"gte=1,lte=64"`
	ConnectionTimeout  time.Duration `koanf:"connection_timeout"   validate:"gte=0"`
	StatusTimeout      time.Duration `koanf:"status_timeout"       validate:"gte=0"`
	StaleAfter         time.Duration `koanf:"stale_after"          validate:"gte=0"`
	ExpiryWarning      time.Duration `koanf:"expiry_warning"       validate:"gte=0"`
}

//
// Platforms section
//

// Platform configures one upstream.  Zero values take the adapter and
// client defaults.
type Platform struct {
	BaseURL         string        `koanf:"base_url"         validate:"omitempty,url"`
	TokenURL        string        `koanf:"token_url"        validate:"omitempty,url"`
	APIVersion      string        `koanf:"api_version"`
	PageSize        int           `koanf:"page_size"        validate:"gte=0"`
	RequestTimeout  time.Duration `koanf:"request_timeout"  validate:"gte=0"`
	RatePerSecond   float64       `koanf:"rate_per_second"  validate:"gte=0"`
	Burst           int           `koanf:"burst"            validate:"gte=0"`
	MaxElapsed      time.Duration `koanf:"max_elapsed"      validate:"gte=0"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gte=0"`
}

// Platforms holds one block per supported ad platform.
type Platforms struct {
	Google   Platform `koanf:"google"`
	Meta     Platform `koanf:"meta"`
	TikTok   Platform `koanf:"tiktok"`
	LinkedIn Platform `koanf:"linkedin"`
}

//
// Logging, GeoIP, and tenant cache
//

type Logging struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `koanf:"dir"` // relative paths hang off Paths.Root
}

type GeoIP struct {
	Path string `koanf:"path"` // empty disables country lookup
}

type Tenants struct {
	CacheIdleTTL    time.Duration `koanf:"cache_idle_ttl"    validate:"gte=0"`
	CacheMaxAge     time.Duration `koanf:"cache_max_age"     validate:"gte=0"` // bounds how long a suspension goes unseen
	CacheMaxEntries int           `koanf:"cache_max_entries" validate:"gte=0"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime.  The loader discovers Root (the directory
// holding conf/adsync.yaml, or ADSYNC_ROOT) so later code can build
// absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Vault     Vault     `koanf:"vault"`
	Sync      Sync      `koanf:"sync"`
	Platforms Platforms `koanf:"platforms"`
	Logging   Logging   `koanf:"logging"`
	GeoIP     GeoIP     `koanf:"geoip"`
	Tenants   Tenants   `koanf:"tenants"`
	Paths     Paths     `koanf:"-"`
}

// defaults fills zero values that the rest of the tree relies on.
func (c *Config) defaults() {
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = time.Minute
	}
	if c.Sync.DaysBack == 0 {
		c.Sync.DaysBack = 30
	}
	if c.Sync.WorkersPerPlatform == 0 {
		c.Sync.WorkersPerPlatform = 4
	}
	if c.Sync.StaleAfter == 0 {
		c.Sync.StaleAfter = time.Hour
	}
	if c.Sync.ExpiryWarning == 0 {
		c.Sync.ExpiryWarning = 7 * 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Tenants.CacheIdleTTL == 0 {
		c.Tenants.CacheIdleTTL = 30 * time.Minute
	}
	if c.Tenants.CacheMaxAge == 0 {
		c.Tenants.CacheMaxAge = time.Minute
	}
	if c.Tenants.CacheMaxEntries == 0 {
		c.Tenants.CacheMaxEntries = 1000
	}
}
