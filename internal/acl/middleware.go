// internal/acl/middleware.go
//
// Chi middleware helpers that enforce RBAC.
//
// Roles are hierarchical (owner > admin > member), so a route names the
// lowest role it accepts.  OAuth app writes need admin, deletes need owner;
// every authenticated caller may read.

package acl

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/adsync/internal/auth"
)

// RequireRole ensures the current principal ranks at or above min.
func RequireRole(min auth.Role) func(http.Handler) http.Handler {
	if min == auth.RoleNone {
		panic("acl.RequireRole: a minimum role must be supplied")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !p.Role.AtLeast(min) {
				zap.S().Infow("acl denied",
					"tenant", p.TenantID, "user", p.UserID, "role", p.Role.String(), "need", min.String(),
					"path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CanManageApps reports whether p may write OAuth app settings.
func CanManageApps(p auth.Principal) bool { return p.Role.AtLeast(auth.RoleAdmin) }
