// internal/vault/vault.go
//
// Vault client wrapper for adsync.
//
// Context
// -------
//   - Provides a concurrency-safe handle around the HashiCorp Vault Go SDK.
//   - Adds background token renewal, KV-v2 read/write/delete helpers, and
//     per-key caching.
//   - Holds tenant OAuth app secrets (client_secret, developer_token) and
//     the config values referenced as `vault:<path>#<key>`.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, log)               // during boot.
//  2. pw,  err := cli.GetKV(ctx, path, key, ttl)    // config secrets.
//  3. m,   err := cli.ReadKV(ctx, path)             // whole secret.
//  4. err      := cli.WriteKV(ctx, path, data)      // upsert, busts cache.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a secret path does not exist.
var ErrNotFound = errors.New("vault: secret not found")

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Create once at startup and inject it.
// Zero value is invalid.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the environment and starts a
// background token-renewal loop bound to ctx.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – initial token (falls back to ~/.vault-token).
func New(ctx context.Context, log *zap.SugaredLogger) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := NewFromAPI(apiCli, log)
	go c.renewLoop(ctx)
	return c, nil
}

// NewFromAPI wraps an already configured SDK client without starting the
// renewal loop.  Tests point it at an httptest server.
func NewFromAPI(api *vault.Client, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{api: api, log: log, cache: make(map[string]cached)}
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	data, err := c.ReadKV(ctx, secretPath)
	if err != nil {
		return "", err
	}
	sval, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

// ReadKV returns every string field of a KV-v2 secret.  Non-string values
// are skipped.
func (c *Client) ReadKV(ctx context.Context, secretPath string) (map[string]string, error) {
	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	out := make(map[string]string, len(sec.Data))
	for k, v := range sec.Data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// WriteKV stores data as a new version of secretPath and drops cached keys
// of that path.
func (c *Client) WriteKV(ctx context.Context, secretPath string, data map[string]string) error {
	payload := make(map[string]any, len(data))
	for k, v := range data {
		payload[k] = v
	}
	mount, rel := splitMount(secretPath)
	if _, err := c.api.KVv2(mount).Put(ctx, rel, payload); err != nil {
		return fmt.Errorf("vault put %s: %w", secretPath, err)
	}
	c.Invalidate(secretPath)
	return nil
}

// DeleteKV removes every version and the metadata of secretPath.
func (c *Client) DeleteKV(ctx context.Context, secretPath string) error {
	mount, rel := splitMount(secretPath)
	if err := c.api.KVv2(mount).DeleteMetadata(ctx, rel); err != nil {
		return fmt.Errorf("vault delete %s: %w", secretPath, err)
	}
	c.Invalidate(secretPath)
	return nil
}

// Invalidate drops every cached key of secretPath.
func (c *Client) Invalidate(secretPath string) {
	prefix := secretPath + "#"
	c.cacheMu.Lock()
	for k := range c.cache {
		if strings.HasPrefix(k, prefix) {
			delete(c.cache, k)
		}
	}
	c.cacheMu.Unlock()
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Check the current token.
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		if err != nil {
			c.log.Warnw("vault token renew-self failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
			c.log.Infow("vault token is not renewable, sleeping 1h")
			backoff(ctx, time.Hour)
			continue
		}

		watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
			Secret: sec,
		})
		if err != nil {
			c.log.Warnw("vault lifetime watcher init failed", "err", err)
			backoff(ctx, 30*time.Second)
			continue
		}

		go watcher.Start()
		c.watch(ctx, watcher)
		if ctx.Err() != nil {
			return
		}
		backoff(ctx, 15*time.Second)
	}
}

// watch blocks until the watcher stops or ctx ends.
func (c *Client) watch(ctx context.Context, w *vault.LifetimeWatcher) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "err", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_seconds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}

func backoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
