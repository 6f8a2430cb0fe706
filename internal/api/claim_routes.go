package api

import (
	"net/http"
	"strings"
	"time"
)

// SetupClaimRoutes registers tile-claim routes. Skipped entirely when the
// active store driver carries no claim table.
func SetupClaimRoutes(mux *http.ServeMux, deps *Deps) {
	if deps.Claims == nil {
		return
	}

	handlers := NewClaimHandlers(deps.Claims)
	authMiddleware := deps.authHandlers().AuthMiddleware
	userRateLimit := UserRateLimitMiddleware(60, 1*time.Minute)

	claimHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/claims")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodPost && path == "":
			handlers.CreateClaim(w, r)
		case r.Method == http.MethodGet && path == "":
			handlers.ListClaims(w, r)
		case r.Method == http.MethodDelete && path != "":
			handlers.DeleteClaim(w, r, path)
		default:
			http.NotFound(w, r)
		}
	})

	authenticated := authMiddleware(claimHandler)
	rateLimited := userRateLimit(authenticated)

	mux.Handle("/api/claims/", rateLimited)
	mux.Handle("/api/claims", rateLimited)
}
