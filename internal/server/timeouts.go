// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Production hardening recommends:
//
//   - ReadHeaderTimeout  abort slow-loris headers
//   - ReadTimeout        cap request body upload
//   - WriteTimeout       cap total response time
//   - IdleTimeout        close keep-alives on idle clients
//
// A manual sync trigger runs the whole pipeline inside the request, so
// WriteTimeout must exceed sync.connection_timeout or the client sees a
// reset while the sync finishes server-side.

package server

import (
	"net/http"
	"time"
)

// Timeouts configures New.  Zero fields take the defaults below.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// New constructs an *http.Server with sensible defaults.
func New(addr string, handler http.Handler, t Timeouts) *http.Server {
	if t.Read <= 0 {
		t.Read = 10 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 15 * time.Minute
	}
	if t.Idle <= 0 {
		t.Idle = 60 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       t.Read,
		WriteTimeout:      t.Write,
		IdleTimeout:       t.Idle,
	}
}
