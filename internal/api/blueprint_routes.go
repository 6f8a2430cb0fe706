package api

import (
	"net/http"
	"strings"
	"time"
)

// SetupBlueprintRoutes registers blueprint inspection and instantiation
// routes.
func SetupBlueprintRoutes(mux *http.ServeMux, deps *Deps) {
	handlers := NewBlueprintHandlers(deps)
	authMiddleware := deps.authHandlers().AuthMiddleware
	userRateLimit := UserRateLimitMiddleware(200, 1*time.Minute)

	blueprintHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/blueprints")
		path = strings.Trim(path, "/")
		segments := strings.Split(path, "/")

		switch {
		case r.Method == http.MethodGet && len(segments) == 1 && segments[0] != "":
			handlers.GetBlueprint(w, r, segments[0])
		case r.Method == http.MethodPost && len(segments) == 2 && segments[1] == "instantiate":
			handlers.Instantiate(w, r, segments[0])
		default:
			http.NotFound(w, r)
		}
	})

	authenticated := authMiddleware(blueprintHandler)
	rateLimited := userRateLimit(authenticated)

	mux.Handle("/api/blueprints/", rateLimited)
	mux.Handle("/api/blueprints", rateLimited)
}
