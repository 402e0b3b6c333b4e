// Package middleware holds the HTTP middleware that depends on application
// packages: identity resolution, role gates and latency metrics.
package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"actarchive/internal/access"
	"actarchive/internal/platform/metrics"
	id "actarchive/pkg/domain"
	dErrors "actarchive/pkg/domain-errors"
	"actarchive/pkg/platform/httputil"
	"actarchive/pkg/platform/middleware/request"
	pstrings "actarchive/pkg/platform/strings"
	"actarchive/pkg/requestcontext"
)

// Identity headers set by the upstream gateway.
const (
	HeaderUserID  = "X-User-ID"
	HeaderRole    = "X-User-Role"
	HeaderBureaux = "X-User-Bureaux"
)

// RequireIdentity resolves the caller from the identity headers. A missing or
// malformed identity is a 401; an unknown role is a 403.
func RequireIdentity(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, err := identityFromHeaders(r.Header)
			if err != nil {
				logger.WarnContext(ctx, "identity rejected",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				m.IncrementIdentityDenied(string(dErrors.CodeOf(err)))
				httputil.WriteError(w, err)
				return
			}

			ctx = access.WithIdentity(ctx, identity)
			ctx = requestcontext.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through only identities holding one of roles.
// It must run after RequireIdentity.
func RequireRole(logger *slog.Logger, m *metrics.Metrics, roles ...access.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, ok := access.FromContext(ctx)
			if !ok {
				m.IncrementIdentityDenied(string(dErrors.CodeUnauthorized))
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "identity required"))
				return
			}
			if !slices.Contains(roles, identity.Role) {
				logger.WarnContext(ctx, "role not permitted",
					"role", identity.Role,
					"path", r.URL.Path,
					"request_id", request.GetRequestID(ctx),
				)
				m.IncrementIdentityDenied(string(dErrors.CodeForbidden))
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(admin).
func RequireAdmin(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return RequireRole(logger, m, access.RoleAdmin)
}

// Latency records request duration keyed by the matched chi route pattern.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, r.Method, status, time.Since(start))
		})
	}
}

func identityFromHeaders(h http.Header) (access.Identity, error) {
	rawUserID := strings.TrimSpace(h.Get(HeaderUserID))
	if rawUserID == "" {
		return access.Identity{}, dErrors.New(dErrors.CodeUnauthorized, "missing "+HeaderUserID+" header")
	}
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return access.Identity{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid "+HeaderUserID+" header")
	}
	role, err := access.ParseRole(h.Get(HeaderRole))
	if err != nil {
		return access.Identity{}, err
	}
	return access.NewIdentity(userID, role, pstrings.SplitList(h.Get(HeaderBureaux), ","))
}
