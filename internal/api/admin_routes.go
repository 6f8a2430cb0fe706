package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/landforge/server/internal/auth"
)

// SetupAdminRoutes registers admin maintenance routes, restricted to the
// admin role with a tight rate limit.
func SetupAdminRoutes(mux *http.ServeMux, deps *Deps) {
	handlers := NewAdminHandlers(deps)
	authHandlers := deps.authHandlers()
	userRateLimit := UserRateLimitMiddleware(10, 1*time.Minute)

	adminHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/admin")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodDelete && path == "caches":
			handlers.ClearCaches(w, r)
		case r.Method == http.MethodGet && path == "metrics":
			handlers.GetMetrics(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	guarded := authHandlers.AuthMiddleware(authHandlers.RequireRole(auth.RoleAdmin)(adminHandler))
	rateLimited := userRateLimit(guarded)

	mux.Handle("/api/admin/", rateLimited)
	mux.Handle("/api/admin", rateLimited)
}
