package api

import (
	"net/http"
	"time"

	"github.com/landforge/server/internal/auth"
	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/config"
	"github.com/landforge/server/internal/database"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/preview"
	"github.com/landforge/server/internal/reconcile"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/streaming"
)

// ClaimGate answers whether an account holds a claim covering a tile. A nil
// gate (sqlite/memory drivers, which carry no claim table) disables claim
// enforcement: every editor may save anywhere.
type ClaimGate interface {
	ClaimCovering(tile uint16, accountID int64) (bool, error)
}

// Deps bundles the services the route groups share. main builds one of these
// after store selection and passes it to SetupRoutes.
type Deps struct {
	Config     *config.Config
	Store      record.Store
	Accounts   *database.AccountStorage
	Claims     ClaimStore
	Blueprints *blueprint.Service
	Reconciler *reconcile.Reconciler
	Region     *landblock.Region
	Preview    *preview.Client
	Profiler   *performance.Profiler
	Streaming  *streaming.Manager
	StartTime  time.Time
}

// authHandlers builds the shared auth service stack for a route group.
func (d *Deps) authHandlers() *auth.AuthHandlers {
	jwtService := auth.NewJWTService(d.Config)
	passwordService := auth.NewPasswordService(d.Config)
	return auth.NewAuthHandlers(d.Accounts, jwtService, passwordService)
}

// SetupRoutes registers every HTTP route group plus the WebSocket endpoint.
// The returned WebSocket handlers expose the hub for shutdown coordination.
func SetupRoutes(mux *http.ServeMux, deps *Deps) *WebSocketHandlers {
	SetupHealthRoutes(mux, deps)
	SetupAuthRoutes(mux, deps)
	SetupConfigRoutes(mux, deps)
	SetupLandblockRoutes(mux, deps)
	SetupBlueprintRoutes(mux, deps)
	SetupClaimRoutes(mux, deps)
	SetupAdminRoutes(mux, deps)
	return SetupWebSocketRoutes(mux, deps)
}
