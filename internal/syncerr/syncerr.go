// internal/syncerr/syncerr.go
//
// Error taxonomy for the sync pipeline.
//
// Context
// -------
// Every failure inside one connection's pipeline is converted into a status
// write and a failed sync result.  The settings UI needs to tell "reconnect
// the account" apart from "try again later", so the kind of a failure is
// carried as data instead of being guessed from the message text.
//
//	configuration        no OAuth app for the connection's platform
//	auth                 token invalid and refresh failed or impossible
//	refresh_unsupported  the platform has no refresh protocol at all
//	upstream             platform call failed (429, 5xx, bad body, timeout)
//	persistence          write to the canonical store failed
//	internal             recovered panic or local bug
//
// Notes
// -----
//   - Use errors.As / KindOf; never compare messages.
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindAuth               Kind = "auth"
	KindRefreshUnsupported Kind = "refresh_unsupported"
	KindUpstream           Kind = "upstream"
	KindPersistence        Kind = "persistence"
	KindInternal           Kind = "internal"
)

// Error is the typed failure returned by every pipeline stage.
type Error struct {
	Kind     Kind
	Platform string
	Op       string // "refresh_token", "fetch_campaigns", "upsert_metrics", ...
	Msg      string
	Status   int  // upstream HTTP status, 0 when not applicable
	Timeout  bool // deadline or client timeout
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Platform != "" {
		b.WriteString(" [" + e.Platform + "]")
	}
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, syncerr.Auth).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Kind-only targets for errors.Is.
var (
	Configuration      = &Error{Kind: KindConfiguration}
	Auth               = &Error{Kind: KindAuth}
	RefreshUnsupported = &Error{Kind: KindRefreshUnsupported}
	Upstream           = &Error{Kind: KindUpstream}
	Persistence        = &Error{Kind: KindPersistence}
)

// NewConfiguration reports a missing or unusable tenant setup.
func NewConfiguration(platform, msg string) *Error {
	return &Error{Kind: KindConfiguration, Platform: platform, Msg: msg}
}

// NewAuth reports an access token that cannot be made valid.
func NewAuth(platform, msg string, cause error) *Error {
	return &Error{Kind: KindAuth, Platform: platform, Op: "refresh_token", Msg: msg, Err: cause}
}

// NewRefreshUnsupported reports a platform without a refresh protocol.
func NewRefreshUnsupported(platform string) *Error {
	return &Error{
		Kind:     KindRefreshUnsupported,
		Platform: platform,
		Op:       "refresh_token",
		Msg:      "platform issues long-lived tokens without refresh, reconnect required",
	}
}

// NewUpstream reports a failed platform call.
func NewUpstream(platform, op string, status int, cause error) *Error {
	return &Error{Kind: KindUpstream, Platform: platform, Op: op, Status: status, Err: cause}
}

// NewTimeout reports a deadline hit while talking to a platform.
func NewTimeout(platform, op string, cause error) *Error {
	return &Error{Kind: KindUpstream, Platform: platform, Op: op, Msg: "timeout", Timeout: true, Err: cause}
}

// NewPersistence reports a failed canonical-store write.
func NewPersistence(op string, cause error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: cause}
}

// NewInternal wraps a recovered panic or unexpected local failure.
func NewInternal(msg string) *Error {
	return &Error{Kind: KindInternal, Msg: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal for unclassified errors.  nil yields "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsTimeout reports whether err is a classified upstream timeout.
func IsTimeout(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Timeout
}

// ReconnectRequired reports whether the user must re-authorize the account.
func ReconnectRequired(err error) bool {
	k := KindOf(err)
	return k == KindAuth || k == KindRefreshUnsupported
}

// Transient reports an upstream failure that says nothing about the
// credentials: a timeout, throttling, a 5xx, or a transport error.  Only
// the remaining 4xx answers mean the platform rejected what we sent.
func Transient(err error) bool {
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindUpstream {
		return false
	}
	return se.Timeout || se.Status < 400 || se.Status == 429 || se.Status >= 500
}
