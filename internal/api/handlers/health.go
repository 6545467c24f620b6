// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rental-calendar-sync/backend/internal/feed"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	FeedsCount        int        `json:"feeds_count"`
	EnabledFeedsCount int        `json:"enabled_feeds_count"`
	BlocksCount       int        `json:"blocks_count"`
	ConflictBlocks    int        `json:"conflict_blocks"`
	ConnectedClients  int        `json:"connected_clients"`
	NextSyncPassAt    *time.Time `json:"next_sync_pass_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *feed.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var feedsCount int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calendar_feeds").Scan(&feedsCount)

		var enabledCount int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calendar_feeds WHERE enabled = 1").Scan(&enabledCount)

		var blocksCount int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM availability_blocks").Scan(&blocksCount)

		var conflictBlocks int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM availability_blocks WHERE status = 'conflict'").Scan(&conflictBlocks)

		response := StatusResponse{
			FeedsCount:        feedsCount,
			EnabledFeedsCount: enabledCount,
			BlocksCount:       blocksCount,
			ConflictBlocks:    conflictBlocks,
		}
		if hub != nil {
			response.ConnectedClients = hub.ClientCount()
		}
		if scheduler != nil {
			response.NextSyncPassAt = scheduler.NextTick()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
