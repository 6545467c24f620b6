package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/rental-calendar-sync/backend/internal/api/middleware"
	"github.com/rental-calendar-sync/backend/internal/feed"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// FeedRequest is the create/update payload for a calendar feed.
type FeedRequest struct {
	PropertyID       string `json:"property_id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	Direction        string `json:"direction"`
	SyncFrequencyMin int    `json:"sync_frequency_min"`
	Priority         int    `json:"priority"`
	Enabled          bool   `json:"enabled"`
}

// validateFeedRequest enforces the configuration-time invariants so a
// misconfigured feed never reaches the scheduler.
func validateFeedRequest(req *FeedRequest, defaultFrequencyMin int) string {
	if req.PropertyID == "" {
		return "property_id is required"
	}
	if req.Name == "" || req.URL == "" {
		return "name and url are required"
	}

	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "url must be a valid http or https URL"
	}

	switch req.Direction {
	case "":
		req.Direction = models.DirectionImport
	case models.DirectionImport, models.DirectionExport:
	default:
		return "direction must be import or export"
	}

	if req.SyncFrequencyMin == 0 {
		req.SyncFrequencyMin = defaultFrequencyMin
	}
	if req.SyncFrequencyMin < models.MinSyncFrequencyMin {
		return "sync_frequency_min must be at least 15"
	}

	return ""
}

// ListFeeds returns all calendar feeds, optionally filtered by property.
func ListFeeds(feedRepo *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var feeds []models.CalendarFeed
		var err error

		if propertyID := r.URL.Query().Get("property_id"); propertyID != "" {
			feeds, err = feedRepo.ListByProperty(r.Context(), propertyID)
		} else {
			feeds, err = feedRepo.List(r.Context())
		}

		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feeds")
			return
		}

		if feeds == nil {
			feeds = []models.CalendarFeed{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feeds)
	}
}

// CreateFeed adds a new calendar feed.
func CreateFeed(feedRepo *storage.FeedRepository, scheduler *feed.Scheduler, defaultFrequencyMin int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		if msg := validateFeedRequest(&req, defaultFrequencyMin); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		f := &models.CalendarFeed{
			PropertyID:       req.PropertyID,
			Name:             req.Name,
			URL:              req.URL,
			Direction:        req.Direction,
			SyncFrequencyMin: req.SyncFrequencyMin,
			Priority:         req.Priority,
			Enabled:          req.Enabled,
		}

		if err := feedRepo.Create(r.Context(), f); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create feed")
			return
		}

		// A new enabled import feed syncs immediately rather than waiting
		// for the next scheduler pass.
		if scheduler != nil && f.Enabled && f.Direction == models.DirectionImport {
			scheduler.TriggerSync(f.ID)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(f)
	}
}

// GetFeed returns a single feed with its last-sync status and result.
func GetFeed(feedRepo *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		f, err := feedRepo.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed")
			return
		}
		if f == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f)
	}
}

// UpdateFeed updates a feed's configuration.
func UpdateFeed(feedRepo *storage.FeedRepository, defaultFrequencyMin int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		existing, err := feedRepo.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed")
			return
		}
		if existing == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		var req FeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.PropertyID == "" {
			req.PropertyID = existing.PropertyID
		}

		if msg := validateFeedRequest(&req, defaultFrequencyMin); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		existing.Name = req.Name
		existing.URL = req.URL
		existing.Direction = req.Direction
		existing.SyncFrequencyMin = req.SyncFrequencyMin
		existing.Priority = req.Priority
		existing.Enabled = req.Enabled

		if err := feedRepo.Update(r.Context(), existing); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update feed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(existing)
	}
}

// DeleteFeed removes a feed.
func DeleteFeed(feedRepo *storage.FeedRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		if err := feedRepo.Delete(r.Context(), id); err != nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncFeed triggers an immediate sync for one feed.
func SyncFeed(feedRepo *storage.FeedRepository, scheduler *feed.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		f, err := feedRepo.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query feed")
			return
		}
		if f == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Feed not found")
			return
		}

		scheduler.TriggerSync(id)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "sync_started"})
	}
}

// SyncAll triggers a sync pass over all feeds; ?force=1 bypasses each feed's
// frequency gate.
func SyncAll(syncService *feed.SyncService, scheduler *feed.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := r.URL.Query().Get("force") == "1"

		if force {
			scheduler.ForceSyncAll()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"status": "full_resync_started"})
			return
		}

		summary, err := syncService.SyncAll(r.Context(), false)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync pass failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}
