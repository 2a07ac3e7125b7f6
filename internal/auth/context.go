// internal/auth/context.go
//
// Caller identity as asserted by the gateway.
//
// Context
// -------
// adsync sits behind an authenticating gateway.  Every request arriving at
// the API carries three headers the gateway sets after verifying the
// session:
//
//	X-Tenant-ID    numeric tenant id
//	X-User-ID      opaque user id, recorded as the audit actor
//	X-User-Role    owner | admin | member
//
// FromGateway parses them into a Principal and stores it in the request
// context.  Handlers read it back with FromContext.
//
// Usage
// -----
//
//	r.Use(auth.FromGateway)
//	p, ok := auth.FromContext(r.Context())
//
// Notes
// -----
//   - A request without a valid tenant id, user id, or role is rejected with
//     401 before any handler runs.
//   - Never expose this service without the gateway in front.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Header names set by the gateway.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderRole     = "X-User-Role"
)

// Role is ordered: owner > admin > member.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleOwner
)

// ParseRole maps a header value to a Role.  Unknown values yield RoleNone.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return RoleOwner
	case "admin":
		return RoleAdmin
	case "member":
		return RoleMember
	}
	return RoleNone
}

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	}
	return "none"
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool { return r >= min }

// Principal is the authenticated caller.
type Principal struct {
	TenantID uint64
	UserID   string
	Role     Role
}

// Actor is the audit-log representation of p.
func (p Principal) Actor() string { return "user:" + p.UserID }

// principalKey is unexported to avoid context-key collisions.
type principalKey struct{}

// WithPrincipal returns a new context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the Principal.  It returns false when none is set.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ParseHeaders builds a Principal from gateway headers.
func ParseHeaders(h http.Header) (Principal, bool) {
	tid, err := strconv.ParseUint(strings.TrimSpace(h.Get(HeaderTenantID)), 10, 64)
	if err != nil || tid == 0 {
		return Principal{}, false
	}
	uid := strings.TrimSpace(h.Get(HeaderUserID))
	role := ParseRole(h.Get(HeaderRole))
	if uid == "" || role == RoleNone {
		return Principal{}, false
	}
	return Principal{TenantID: tid, UserID: uid, Role: role}, true
}

// FromGateway is middleware that authenticates the request from gateway
// headers.
func FromGateway(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ParseHeaders(r.Header)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
