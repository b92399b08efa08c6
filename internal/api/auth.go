package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/analytics-import/internal/pkg/httputil"
)

// Role is the caller's access level for a site.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Authorization errors returned by Authorizer implementations.
var (
	ErrBadToken = errors.New("invalid or expired token")
	ErrNoAccess = errors.New("no access to site")
)

// Authorizer verifies a bearer token against a site and resolves the
// caller's role. Token issuance and the account model live outside this
// service.
type Authorizer interface {
	Authorize(ctx context.Context, token, siteID string) (Role, error)
}

type roleContextKey struct{}

// RoleFromContext returns the role resolved by the auth middleware.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleContextKey{}).(Role)
	return role, ok
}

// RequireSiteAccess authenticates the bearer token against the {siteID}
// route parameter and stores the resolved role on the request context.
// Authorization failures produce no side effects downstream.
func RequireSiteAccess(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.Unauthorized(w, "missing bearer token")
				return
			}

			siteID := chi.URLParam(r, "siteID")
			role, err := authorizer.Authorize(r.Context(), token, siteID)
			if errors.Is(err, ErrBadToken) {
				httputil.Unauthorized(w, "invalid or expired token")
				return
			}
			if errors.Is(err, ErrNoAccess) {
				httputil.Forbidden(w, "no access to site")
				return
			}
			if err != nil {
				httputil.InternalError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), roleContextKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin gates a handler on RoleAdmin, on top of RequireSiteAccess.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, ok := RoleFromContext(r.Context())
		if !ok || role != RoleAdmin {
			httputil.Forbidden(w, "site administrator access required")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
