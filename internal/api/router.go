// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/rental-calendar-sync/backend/internal/api/handlers"
	"github.com/rental-calendar-sync/backend/internal/api/middleware"
	"github.com/rental-calendar-sync/backend/internal/booking"
	"github.com/rental-calendar-sync/backend/internal/feed"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/websocket"
)

// Services bundles the dependencies injected into the router.
type Services struct {
	DB                  *storage.DB
	Hub                 *websocket.Hub
	FeedRepo            *storage.FeedRepository
	AvailRepo           *storage.AvailabilityRepository
	SyncService         *feed.SyncService
	Scheduler           *feed.Scheduler
	Bridge              *booking.Bridge
	Partner             *feed.BidirectionalService
	DefaultFrequencyMin int
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Scheduler)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Feed endpoints
	api.HandleFunc("/feeds", handlers.ListFeeds(s.FeedRepo)).Methods("GET")
	api.HandleFunc("/feeds", handlers.CreateFeed(s.FeedRepo, s.Scheduler, s.DefaultFrequencyMin)).Methods("POST")
	api.HandleFunc("/feeds/{id}", handlers.GetFeed(s.FeedRepo)).Methods("GET")
	api.HandleFunc("/feeds/{id}", handlers.UpdateFeed(s.FeedRepo, s.DefaultFrequencyMin)).Methods("PUT")
	api.HandleFunc("/feeds/{id}", handlers.DeleteFeed(s.FeedRepo)).Methods("DELETE")
	api.HandleFunc("/feeds/{id}/sync", handlers.SyncFeed(s.FeedRepo, s.Scheduler)).Methods("POST")
	api.HandleFunc("/sync", handlers.SyncAll(s.SyncService, s.Scheduler)).Methods("POST")

	// Availability endpoints
	api.HandleFunc("/properties/{id}/availability", handlers.ListAvailability(s.AvailRepo)).Methods("GET")
	api.HandleFunc("/properties/{id}/availability/check", handlers.CheckAvailability(s.AvailRepo)).Methods("GET")
	api.HandleFunc("/properties/{id}/calendar.ics", handlers.ExportCalendar(s.AvailRepo)).Methods("GET")

	// Booking lifecycle bridge
	api.HandleFunc("/bookings/events", handlers.BookingChanged(s.Bridge)).Methods("POST")
	api.HandleFunc("/bookings/{id}/block", handlers.BookingDeleted(s.Bridge)).Methods("DELETE")

	// Partner bidirectional sync
	api.HandleFunc("/partner-sync", handlers.PartnerSync(s.Partner)).Methods("POST")

	return r
}
