// cmd/adsync/main.go
//
// adsync entry point.
//
// Boot sequence
// -------------
//
//  1. Console bootstrap logger, signal-bound root context.
//
//  2. Vault client (VAULT_ADDR / VAULT_TOKEN), then config, whose
//     `vault:` references resolve through it.
//
//  3. Daily rotating file logger (tees to console when running in a TTY).
//
//  4. Control-plane DB with connect retry, embedded migrations.
//
//  5. Platform adapters, each behind its own rate-limited, circuit-broken
//     upstream client.
//
//  6. Repositories, token manager, orchestrator, tenant cache, API.
//
//  7. HTTP server and cron scheduler; SIGINT/SIGTERM drains both.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/api"
	"github.com/yanizio/adsync/internal/audit"
	"github.com/yanizio/adsync/internal/canonical"
	"github.com/yanizio/adsync/internal/config"
	"github.com/yanizio/adsync/internal/connection"
	"github.com/yanizio/adsync/internal/credential"
	"github.com/yanizio/adsync/internal/database"
	"github.com/yanizio/adsync/internal/logger"
	"github.com/yanizio/adsync/internal/migration"
	"github.com/yanizio/adsync/internal/orchestrator"
	"github.com/yanizio/adsync/internal/platform"
	"github.com/yanizio/adsync/internal/platform/google"
	"github.com/yanizio/adsync/internal/platform/linkedin"
	"github.com/yanizio/adsync/internal/platform/meta"
	"github.com/yanizio/adsync/internal/platform/tiktok"
	"github.com/yanizio/adsync/internal/requestinfo"
	"github.com/yanizio/adsync/internal/scheduler"
	"github.com/yanizio/adsync/internal/server"
	"github.com/yanizio/adsync/internal/tenant"
	"github.com/yanizio/adsync/internal/token"
	"github.com/yanizio/adsync/internal/upstream"
	"github.com/yanizio/adsync/internal/vault"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	boot := logger.Bootstrap()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, boot); err != nil {
		zap.S().Errorw("adsync stopped", "err", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

func run(ctx context.Context, boot *zap.SugaredLogger) error {
	//
	// ── 1.  Secrets and config ──────────────────────────────────────────
	//
	vc, err := vault.New(ctx, boot)
	if err != nil {
		return err
	}
	cfg, err := config.Load(ctx, vc)
	if err != nil {
		return err
	}

	logDir := cfg.Logging.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	log, err := logger.New(logger.Options{Dir: logDir, Level: cfg.Logging.Level, Tee: runningInTTY()})
	if err != nil {
		return err
	}

	//
	// ── 2.  Database ────────────────────────────────────────────────────
	//
	db, err := database.Open(ctx, cfg.Database.DSN(), database.Options{
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		Log:             log,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		m, err := migration.New(db.DB, log)
		if err != nil {
			return err
		}
		err = m.Up()
		_ = m.Close()
		if err != nil {
			return err
		}
	}

	if cfg.GeoIP.Path != "" {
		if err := requestinfo.InitGeo(cfg.GeoIP.Path); err != nil {
			log.Warnw("geoip disabled", "err", err)
		} else {
			defer requestinfo.CloseGeo()
		}
	}

	//
	// ── 3.  Platform adapters ───────────────────────────────────────────
	//
	p := cfg.Platforms
	adapters := platform.NewRegistry(
		google.New(google.Config{
			BaseURL:    p.Google.BaseURL,
			TokenURL:   p.Google.TokenURL,
			APIVersion: p.Google.APIVersion,
		}, upstreamClient(platform.Google, p.Google, log)),
		meta.New(meta.Config{
			BaseURL:    p.Meta.BaseURL,
			APIVersion: p.Meta.APIVersion,
			PageSize:   p.Meta.PageSize,
		}, upstreamClient(platform.Meta, p.Meta, log)),
		tiktok.New(tiktok.Config{
			BaseURL:  p.TikTok.BaseURL,
			PageSize: p.TikTok.PageSize,
		}, upstreamClient(platform.TikTok, p.TikTok, log)),
		linkedin.New(linkedin.Config{
			BaseURL:    p.LinkedIn.BaseURL,
			TokenURL:   p.LinkedIn.TokenURL,
			APIVersion: p.LinkedIn.APIVersion,
			PageSize:   p.LinkedIn.PageSize,
		}, upstreamClient(platform.LinkedIn, p.LinkedIn, log)),
	)

	//
	// ── 4.  Domain services ─────────────────────────────────────────────
	//
	conns := connection.NewRegistry(db, cfg.Sync.StaleAfter)
	trail := audit.NewTrail(db, log)
	apps := credential.NewService(db, vc, cfg.Vault.SecretsPath, trail, log)
	tenants := tenant.NewStore(db)
	tenantCache := tenant.NewCache(tenants, cfg.Tenants.CacheIdleTTL, cfg.Tenants.CacheMaxAge, cfg.Tenants.CacheMaxEntries, log)
	defer tenantCache.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Connections: conns,
		Apps:        apps,
		Tokens:      token.NewManager(adapters, conns, log),
		Adapters:    adapters,
		Store:       canonical.NewStore(db),
		Tenants:     tenants,
	}, orchestrator.Config{
		WorkersPerPlatform: cfg.Sync.WorkersPerPlatform,
		ConnectionTimeout:  cfg.Sync.ConnectionTimeout,
		StatusTimeout:      cfg.Sync.StatusTimeout,
		DaysBack:           cfg.Sync.DaysBack,
	}, log)

	//
	// ── 5.  HTTP and scheduler ──────────────────────────────────────────
	//
	h := api.New(api.Deps{
		Apps:        apps,
		Connections: conns,
		Syncer:      orch,
		Tenants:     tenantCache,
		Audit:       trail,
		DB:          db,
	}, cfg.Sync.ExpiryWarning, log)

	srv := server.New(cfg.HTTP.ListenAddr, h.Routes(), server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	var sched *scheduler.Scheduler
	if cfg.Sync.Schedule != "" {
		sched, err = scheduler.New(cfg.Sync.Schedule, orch, orchestrator.Options{}, log)
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		log.Infow("scheduled sync disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Infow("shutdown requested")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if sched != nil {
		sched.Stop(shutCtx)
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	log.Infow("adsync stopped cleanly")
	return nil
}

// upstreamClient builds the rate-limited, circuit-broken client for one
// platform.
func upstreamClient(p platform.Platform, c config.Platform, log *zap.SugaredLogger) *upstream.Client {
	return upstream.New(upstream.Config{
		Platform:        string(p),
		RequestTimeout:  c.RequestTimeout,
		RatePerSecond:   c.RatePerSecond,
		Burst:           c.Burst,
		MaxElapsed:      c.MaxElapsed,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}, nil, log.With("platform", string(p)))
}
