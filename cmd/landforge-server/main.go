package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/landforge/server/internal/api"
	"github.com/landforge/server/internal/blueprint"
	"github.com/landforge/server/internal/config"
	"github.com/landforge/server/internal/database"
	"github.com/landforge/server/internal/landblock"
	"github.com/landforge/server/internal/localdb"
	"github.com/landforge/server/internal/performance"
	"github.com/landforge/server/internal/preview"
	"github.com/landforge/server/internal/reconcile"
	"github.com/landforge/server/internal/record"
	"github.com/landforge/server/internal/streaming"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	region, err := landblock.LoadRegion(cfg.Region.ManifestPath)
	if err != nil {
		log.Fatalf("Failed to load region manifest: %v", err)
	}

	profiler := performance.NewProfiler(true)

	deps := &api.Deps{
		Config:    cfg,
		Region:    region,
		Profiler:  profiler,
		Streaming: streaming.NewManager(region),
		StartTime: time.Now(),
	}

	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.Connect(&cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := database.Bootstrap(db); err != nil {
			log.Fatalf("Failed to bootstrap database schema: %v", err)
		}
		deps.Store = database.NewRecordStorage(db)
		deps.Accounts = database.NewAccountStorage(db)
		deps.Claims = database.NewClaimStorage(db)

	case "sqlite":
		store, err := localdb.Open(cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		defer store.Close()
		deps.Store = store
		log.Printf("sqlite driver: accounts and tile claims are disabled")

	case "memory":
		deps.Store = record.NewMemStore()
		log.Printf("memory driver: records are ephemeral; accounts and tile claims are disabled")

	default:
		log.Fatalf("Unknown store driver %q", cfg.Store.Driver)
	}

	deps.Blueprints = blueprint.NewService(deps.Store, profiler)
	deps.Reconciler = reconcile.New(deps.Store, deps.Blueprints, profiler)

	if cfg.Preview.BaseURL != "" {
		client := preview.NewClient(cfg)
		if err := client.HealthCheck(); err != nil {
			log.Printf("Warning: preview service not reachable at startup: %v", err)
		}
		deps.Preview = client
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, deps)
	handler := api.SecurityHeadersMiddleware(api.CORSMiddleware(mux))

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("LandForge server listening on %s (driver=%s, region=%s)", addr, cfg.Store.Driver, region.Name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
