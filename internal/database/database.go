// Package database centralises sqlx connection helpers.  The driver is
// go-sql-driver/mysql, which also works with MariaDB.
//
// Open pings the database before returning so callers can fail fast during
// bootstrap, retrying with exponential backoff while the server comes up.
// Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Options tunes the pool.  Zero fields take defaults: 15 open, 5 idle,
// 30-minute lifetime, one minute of connect retries.
type Options struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	Log             *zap.SugaredLogger
}

func (o *Options) defaults() {
	if o.MaxOpen <= 0 {
		o.MaxOpen = 15
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = 5
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = time.Minute
	}
	if o.Log == nil {
		o.Log = zap.NewNop().Sugar()
	}
}

// connect is replaced in tests.
var connect = func(dsn string) (*sqlx.DB, error) { return sqlx.Open("mysql", dsn) }

// Open returns a pinged *sqlx.DB.
func Open(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	opts.defaults()

	db, err := connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = opts.ConnectTimeout

	attempt := 0
	ping := func() error {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			opts.Log.Warnw("database not ready", "attempt", attempt, "err", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	opts.Log.Infow("database online", "attempts", attempt, "max_open", opts.MaxOpen)
	return db, nil
}
