package api

import (
	"net/http"
	"time"

	"github.com/landforge/server/internal/auth"
)

// SetupAuthRoutes sets up authentication routes with rate limiting. Account
// endpoints need the account table, so they are skipped for store drivers
// without one; token validation on the other route groups still works.
func SetupAuthRoutes(mux *http.ServeMux, deps *Deps) {
	if deps.Accounts == nil {
		return
	}

	authHandlers := deps.authHandlers()

	// 5 requests per minute per IP for authentication endpoints
	authRateLimit := RateLimitMiddleware(5, 1*time.Minute)

	mux.Handle("/api/auth/register", authRateLimit(http.HandlerFunc(authHandlers.Register)))
	mux.Handle("/api/auth/login", authRateLimit(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("/api/auth/refresh", authRateLimit(http.HandlerFunc(authHandlers.Refresh)))
	mux.Handle("/api/auth/logout", authRateLimit(http.HandlerFunc(authHandlers.Logout)))
	mux.Handle("/api/auth/profile", authHandlers.AuthMiddleware(http.HandlerFunc(authHandlers.Profile)))
}

// SecurityHeadersMiddleware wraps auth.SecurityHeadersMiddleware for use in main
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return auth.SecurityHeadersMiddleware(next)
}
