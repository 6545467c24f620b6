// Package main is the entry point for the rental availability sync server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rental-calendar-sync/backend/internal/api"
	"github.com/rental-calendar-sync/backend/internal/booking"
	"github.com/rental-calendar-sync/backend/internal/config"
	"github.com/rental-calendar-sync/backend/internal/feed"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/rental-calendar-sync/config.yaml", "Path to YAML configuration file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	dataDir := flag.String("data", "", "Data directory for SQLite database (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting rental availability sync server (version: %s)...", version)

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", cfg.DataDir, err)
	}
	dbPath := cfg.DataDir + "/rental-calendar-sync.db"
	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	feedRepo := storage.NewFeedRepository(db)
	availRepo := storage.NewAvailabilityRepository(db)

	// Initialize services
	fetchTimeout := time.Duration(cfg.FetchTimeout)
	syncService := feed.NewSyncService(feedRepo, availRepo, fetchTimeout)
	scheduler := feed.NewScheduler(syncService, hub, time.Duration(cfg.SchedulerTick))
	bridge := booking.NewBridge(availRepo)
	partner := feed.NewBidirectionalService(availRepo, fetchTimeout)

	// Start the periodic sync scheduler
	if err := scheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start feed scheduler: %v", err)
	}

	// Initialize HTTP router with services
	router := api.NewRouter(api.Services{
		DB:                  db,
		Hub:                 hub,
		FeedRepo:            feedRepo,
		AvailRepo:           availRepo,
		SyncService:         syncService,
		Scheduler:           scheduler,
		Bridge:              bridge,
		Partner:             partner,
		DefaultFrequencyMin: cfg.DefaultSyncFrequencyMin,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler, waiting for in-flight sync runs
	scheduler.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
