package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rental-calendar-sync/backend/internal/api/middleware"
	"github.com/rental-calendar-sync/backend/internal/booking"
	"github.com/rental-calendar-sync/backend/internal/feed"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// ListAvailability returns a property's availability blocks.
func ListAvailability(availRepo *storage.AvailabilityRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		blocks, err := availRepo.ListByProperty(r.Context(), propertyID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query availability")
			return
		}

		if blocks == nil {
			blocks = []models.AvailabilityBlock{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(blocks)
	}
}

// AvailabilityCheckResponse reports whether a date range is bookable.
type AvailabilityCheckResponse struct {
	PropertyID string    `json:"property_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Available  bool      `json:"available"`
}

// CheckAvailability is the booking-creation gate: the booking layer calls it
// before persisting a booking for the candidate range.
func CheckAvailability(availRepo *storage.AvailabilityRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "start must be an RFC 3339 timestamp")
			return
		}
		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end must be an RFC 3339 timestamp")
			return
		}
		if !end.After(start) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end must be after start")
			return
		}

		conflict, err := availRepo.HasConflict(r.Context(), propertyID, start.UTC(), end.UTC())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check availability")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AvailabilityCheckResponse{
			PropertyID: propertyID,
			Start:      start.UTC(),
			End:        end.UTC(),
			Available:  !conflict,
		})
	}
}

// ExportCalendar serves a property's canonical timeline as an iCal document.
func ExportCalendar(availRepo *storage.AvailabilityRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		propertyID := mux.Vars(r)["id"]

		blocks, err := availRepo.ListByProperty(r.Context(), propertyID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query availability")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Write([]byte(feed.Serialize(propertyID, blocks)))
	}
}

// BookingEvent is the payload the booking layer posts on lifecycle
// transitions.
type BookingEvent struct {
	BookingID  string    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Status     string    `json:"status"`
}

// BookingChanged mirrors a booking lifecycle transition onto the timeline.
func BookingChanged(bridge *booking.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookingEvent
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		b := models.Booking{
			ID:         req.BookingID,
			PropertyID: req.PropertyID,
			CheckIn:    req.CheckIn,
			CheckOut:   req.CheckOut,
			Status:     req.Status,
		}

		if err := bridge.BookingChanged(r.Context(), b); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// BookingDeleted removes the timeline block for a deleted booking.
func BookingDeleted(bridge *booking.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID := mux.Vars(r)["id"]

		if err := bridge.BookingDeleted(r.Context(), bookingID); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to remove booking block")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// PartnerSync invokes the bidirectional partner sync facade.
func PartnerSync(service *feed.BidirectionalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feed.PartnerSyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		result, err := service.Sync(r.Context(), req)
		if err != nil {
			if result == nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
				return
			}
			middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrInternalError, err.Error(), result)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
