// internal/migration/migrate.go
//
// Embedded schema migrations.
//
// Context
// -------
// The control-plane schema (tenant, oauth_app, platform_connection,
// campaign, metrics_record, audit_log) ships inside the binary as numbered
// golang-migrate files and is applied at boot when
// `database.migrate: true`.
//
// Notes
// -----
//   - One statement per file; the MySQL driver runs each file as a single
//     Exec, so the DSN needs no multiStatements flag.
//   - A dirty version stops the boot.  Fix the schema by hand, then Force.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var files embed.FS

// Migrator wraps one migrate instance bound to an open pool.
type Migrator struct {
	m   *migrate.Migrate
	log *zap.SugaredLogger
}

// New builds a Migrator over db.  Close releases the migrate handles but
// leaves db open.
func New(db *sql.DB, log *zap.SugaredLogger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	src, err := iofs.New(files, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	if v, dirty, err := m.m.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty", v)
	}
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Infow("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, _, _ := m.m.Version()
	m.log.Infow("schema migrated", "version", v)
	return nil
}

// Version reports the applied version; zero means none.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the version without running anything.
func (m *Migrator) Force(version int) error {
	m.log.Warnw("forcing schema version", "version", version)
	return m.m.Force(version)
}

// Close releases the source and driver.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
