package api

import (
	"net/http"
	"strings"
	"time"
)

// SetupLandblockRoutes registers tile record routes.
func SetupLandblockRoutes(mux *http.ServeMux, deps *Deps) {
	handlers := NewLandblockHandlers(deps)
	authMiddleware := deps.authHandlers().AuthMiddleware
	userRateLimit := UserRateLimitMiddleware(200, 1*time.Minute)

	landblockHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/landblocks")
		path = strings.Trim(path, "/")
		segments := strings.Split(path, "/")

		switch {
		case r.Method == http.MethodGet && len(segments) == 1 && segments[0] != "":
			handlers.GetLandblock(w, r, segments[0])
		case r.Method == http.MethodPut && len(segments) == 2 && segments[1] == "objects":
			handlers.SaveObjects(w, r, segments[0])
		case r.Method == http.MethodGet && len(segments) == 3 && segments[1] == "cells":
			handlers.GetCell(w, r, segments[0], segments[2])
		case r.Method == http.MethodGet && len(segments) == 2 && segments[1] == "export":
			handlers.Export(w, r, segments[0])
		case r.Method == http.MethodPost && len(segments) == 2 && segments[1] == "preview":
			handlers.Preview(w, r, segments[0])
		default:
			http.NotFound(w, r)
		}
	})

	authenticated := authMiddleware(landblockHandler)
	rateLimited := userRateLimit(authenticated)

	mux.Handle("/api/landblocks/", rateLimited)
	mux.Handle("/api/landblocks", rateLimited)
}
