package models

import (
	"time"
)

// AvailabilityBlock is a single contiguous span on a property's canonical
// availability timeline. Start and End are UTC with End exclusive, so
// back-to-back blocks never overlap.
type AvailabilityBlock struct {
	ID              string    `json:"id"`
	PropertyID      string    `json:"property_id"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	Status          string    `json:"status"`
	Source          string    `json:"source"`
	ExternalEventID *string   `json:"external_event_id,omitempty"`
	FeedID          *string   `json:"feed_id,omitempty"`
	// FeedPriority is a snapshot of the owning feed's priority at write time.
	// Later priority changes never retroactively alter past decisions.
	FeedPriority *int      `json:"feed_priority,omitempty"`
	BookingID    *string   `json:"booking_id,omitempty"`
	Summary      *string   `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Block status constants
const (
	BlockStatusAvailable   = "available"
	BlockStatusUnavailable = "unavailable"
	BlockStatusConflict    = "conflict"
)

// Block source constants
const (
	SourceCalendarSync = "calendar_sync"
	SourceManual       = "manual"
	SourceBooking      = "booking"
)

// Overlaps reports whether the block's span intersects [start, end) under
// half-open interval semantics.
func (b *AvailabilityBlock) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt)
}

// SnapshotPriority returns the stored feed priority, treating a missing
// snapshot as the lowest possible rank so it is always overridable.
func (b *AvailabilityBlock) SnapshotPriority() int {
	if b.FeedPriority == nil {
		return -1 << 31
	}
	return *b.FeedPriority
}
