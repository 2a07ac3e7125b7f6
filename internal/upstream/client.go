// internal/upstream/client.go
//
// Shared HTTP plumbing for platform adapters.
//
// Context
// -------
// Every adapter talks to exactly one ad network, and every ad network
// enforces its own quota.  One Client therefore exists per platform and owns:
//
//   - a token-bucket limiter (golang.org/x/time/rate),
//   - a circuit breaker (sony/gobreaker) that opens after repeated 5xx,
//     429, or transport failures,
//   - exponential retry with jitter (cenkalti/backoff/v4).
//
// A throttled platform only slows its own adapter; the others keep their
// own budget.
//
// Classification
// --------------
//
//	2xx                    decode into out
//	429, 5xx, transport    retry, then syncerr upstream with status
//	other 4xx              permanent syncerr upstream with body snippet
//	undecodable body       permanent syncerr upstream "malformed response"
//	ctx deadline           syncerr upstream timeout
//
// Notes
// -----
//   - Request builders are called once per attempt so bodies can be re-read.
//   - Transport errors keep their URL, with credential query values masked
//     by RedactURL.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/adsync/internal/metrics"
	"github.com/yanizio/adsync/internal/syncerr"
)

// maxBody caps how much of a response we are willing to buffer (10 MB).
const maxBody = 10 * 1024 * 1024

// Config tunes one platform client.  Zero fields take defaults.
type Config struct {
	Platform        string
	RequestTimeout  time.Duration
	RatePerSecond   float64
	Burst           int
	InitialBackoff  time.Duration
	MaxElapsed      time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (c *Config) defaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 20 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
}

// RequestFunc builds a fresh request for one attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

// New builds a Client.  httpClient may be nil.
func New(cfg Config, httpClient *http.Client, log *zap.SugaredLogger) *Client {
	cfg.defaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Platform,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes (401, 400) say nothing about platform health.
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("upstream breaker state change",
				"platform", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Platform returns the platform key this client serves.
func (c *Client) Platform() string { return c.cfg.Platform }

// Do executes build under limiter, breaker, and retry, and decodes a 2xx
// JSON body into out (skipped when out is nil).
func (c *Client) Do(ctx context.Context, op string, build RequestFunc, out any) error {
	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(c.ctxError(ctx, op, err))
		}
		body, err := c.breaker.Execute(func() (interface{}, error) {
			return c.roundTrip(ctx, op, build)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(syncerr.NewUpstream(c.cfg.Platform, op, 0,
					fmt.Errorf("circuit open: %w", err)))
			}
			if retryable(err) {
				c.log.Debugw("upstream retry", "platform", c.cfg.Platform, "op", op, "err", err)
				return err
			}
			return backoff.Permanent(err)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body.([]byte), out); err != nil {
			return backoff.Permanent(syncerr.NewUpstream(c.cfg.Platform, op, 0,
				fmt.Errorf("malformed response: %w", err)))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxElapsedTime = c.cfg.MaxElapsed

	err := backoff.Retry(attempt, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}
	var (
		re *retryableErr
		pb *permanentBuild
		se *syncerr.Error
	)
	switch {
	case errors.As(err, &re):
		return re.err
	case errors.As(err, &pb):
		return fmt.Errorf("%s %s: %w", c.cfg.Platform, op, pb)
	case errors.As(err, &se):
		return se
	}
	return c.ctxError(ctx, op, err)
}

// roundTrip performs one HTTP exchange and classifies the outcome.
func (c *Client) roundTrip(ctx context.Context, op string, build RequestFunc) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, &permanentBuild{err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = RedactURL(ue.URL)
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Platform, op, "transport").Inc()
		if ctx.Err() != nil {
			return nil, c.ctxError(ctx, op, ctx.Err())
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, &retryableErr{syncerr.NewTimeout(c.cfg.Platform, op, err)}
		}
		return nil, &retryableErr{syncerr.NewUpstream(c.cfg.Platform, op, 0, err)}
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Platform, op, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &retryableErr{syncerr.NewUpstream(c.cfg.Platform, op, resp.StatusCode, err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &retryableErr{syncerr.NewUpstream(c.cfg.Platform, op, resp.StatusCode,
			errors.New(snippet(body)))}
	default:
		return nil, syncerr.NewUpstream(c.cfg.Platform, op, resp.StatusCode, errors.New(snippet(body)))
	}
}

func (c *Client) ctxError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return syncerr.NewTimeout(c.cfg.Platform, op, context.DeadlineExceeded)
	}
	return syncerr.NewUpstream(c.cfg.Platform, op, 0, err)
}

// retryableErr marks a failure worth another attempt.  It unwraps to the
// classified *syncerr.Error so callers never see the marker.
type retryableErr struct{ err error }

func (r *retryableErr) Error() string { return r.err.Error() }
func (r *retryableErr) Unwrap() error { return r.err }

type permanentBuild struct{ err error }

func (p *permanentBuild) Error() string { return "build request: " + p.err.Error() }
func (p *permanentBuild) Unwrap() error { return p.err }

func retryable(err error) bool {
	var r *retryableErr
	return errors.As(err, &r)
}

func snippet(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
