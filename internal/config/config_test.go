package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
http:
  listen_addr: "127.0.0.1:8080"
  write_timeout: 15m
database:
  dsn: "adsync:%s@tcp(db:3306)/adsync?parseTime=true"
  password: "vault:secret/adsync/db#password"
vault:
  secrets_path: secret/adsync
sync:
  schedule: "0 */6 * * *"
  days_back: 14
platforms:
  google:
    base_url: "https://googleads.example.test"
    rate_per_second: 2.5
`

type fakeResolver map[string]string

func (f fakeResolver) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	v, ok := f[path+"#"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeRoot(t *testing.T, yaml string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", configFile), []byte(yaml), 0o644))
	t.Setenv("ADSYNC_ROOT", root)
}

func TestLoadLayersAndResolvesSecrets(t *testing.T) {
	writeRoot(t, baseYAML)
	t.Setenv("ADSYNC_SYNC__WORKERS_PER_PLATFORM", "8")
	t.Setenv("ADSYNC_HTTP__LISTEN_ADDR", "0.0.0.0:9090")

	cfg, err := Load(context.Background(), fakeResolver{"secret/adsync/db#password": "pw"})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, 15*time.Minute, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 8, cfg.Sync.WorkersPerPlatform)
	assert.Equal(t, 14, cfg.Sync.DaysBack)
	assert.Equal(t, "adsync:pw@tcp(db:3306)/adsync?parseTime=true", cfg.Database.DSN())
	assert.Equal(t, 2.5, cfg.Platforms.Google.RatePerSecond)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.ExpiryWarning)
	assert.Equal(t, time.Minute, cfg.Tenants.CacheMaxAge)
	assert.Same(t, cfg, Get())
}

func TestLoadFailsWithoutResolver(t *testing.T) {
	writeRoot(t, baseYAML)
	_, err := Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestValidationRules(t *testing.T) {
	cases := map[string]func(*Config){
		"dsn without verb":   func(c *Config) { c.Database.DSNTemplate = "adsync:pw@tcp(db)/adsync" },
		"dsn with two verbs": func(c *Config) { c.Database.DSNTemplate = "%s:%s@tcp(db)/adsync" },
		"bad schedule":       func(c *Config) { c.Sync.Schedule = "every tuesday" },
		"days back too big":  func(c *Config) { c.Sync.DaysBack = 400 },
		"bad listen addr":    func(c *Config) { c.HTTP.ListenAddr = "nope" },
		"bad log level":      func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			assert.Error(t, validateStruct(c))
		})
	}

	c := validConfig()
	c.Sync.Schedule = "@every 30m"
	assert.NoError(t, validateStruct(c))
	c.Sync.Schedule = ""
	assert.NoError(t, validateStruct(c))
}

func TestParseRef(t *testing.T) {
	p, k, err := parseRef("vault:secret/a/b#pw")
	require.NoError(t, err)
	assert.Equal(t, "secret/a/b", p)
	assert.Equal(t, "pw", k)

	for _, bad := range []string{"vault:secret/a", "vault:#pw", "vault:secret/a#"} {
		_, _, err := parseRef(bad)
		assert.Error(t, err, bad)
	}
}

func validConfig() *Config {
	c := &Config{
		HTTP:     HTTP{ListenAddr: "127.0.0.1:8080"},
		Database: Database{DSNTemplate: "u:%s@tcp(db)/x", Password: "pw"},
		Vault:    Vault{SecretsPath: "secret/adsync"},
	}
	c.defaults()
	return c
}
