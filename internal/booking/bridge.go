// Package booking keeps the canonical availability timeline consistent with
// first-party booking lifecycle transitions.
package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// Bridge mirrors booking lifecycle transitions onto the availability
// timeline. It bypasses the feed conflict pipeline entirely: booking
// creation is gated by an availability check before the booking is
// persisted, so the booking is authoritative for its own exact range.
type Bridge struct {
	availRepo *storage.AvailabilityRepository
}

// NewBridge creates a new booking-state bridge.
func NewBridge(availRepo *storage.AvailabilityRepository) *Bridge {
	return &Bridge{availRepo: availRepo}
}

// CheckAvailability reports whether [checkIn, checkOut) is free of holds for
// the property. The booking layer must call this before persisting a
// booking.
func (b *Bridge) CheckAvailability(ctx context.Context, propertyID string, checkIn, checkOut time.Time) (bool, error) {
	conflict, err := b.availRepo.HasConflict(ctx, propertyID, checkIn, checkOut)
	return !conflict, err
}

// BookingChanged applies a booking's current state to the timeline: holding
// its dates while pending/confirmed, releasing them otherwise. The block is
// keyed by booking ID so repeated notifications update in place.
func (b *Bridge) BookingChanged(ctx context.Context, booking models.Booking) error {
	if booking.ID == "" || booking.PropertyID == "" {
		return fmt.Errorf("booking ID and property ID are required")
	}
	if !booking.CheckOut.After(booking.CheckIn) {
		return fmt.Errorf("booking check-out must be after check-in")
	}

	if booking.BlocksDates() {
		return b.holdDates(ctx, booking)
	}
	return b.releaseDates(ctx, booking)
}

// holdDates creates or updates the booking-derived block spanning check-in
// (inclusive) to check-out (exclusive).
func (b *Bridge) holdDates(ctx context.Context, booking models.Booking) error {
	existing, err := b.availRepo.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("looking up booking block: %w", err)
	}

	summary := "Booked"

	if existing != nil {
		existing.StartAt = booking.CheckIn.UTC()
		existing.EndAt = booking.CheckOut.UTC()
		existing.Status = models.BlockStatusUnavailable
		if err := b.availRepo.UpdateBookingBlock(ctx, existing); err != nil {
			return fmt.Errorf("updating booking block: %w", err)
		}
		return nil
	}

	block := &models.AvailabilityBlock{
		PropertyID: booking.PropertyID,
		StartAt:    booking.CheckIn.UTC(),
		EndAt:      booking.CheckOut.UTC(),
		Status:     models.BlockStatusUnavailable,
		Source:     models.SourceBooking,
		BookingID:  &booking.ID,
		Summary:    &summary,
	}

	if err := b.availRepo.Create(ctx, block); err != nil {
		return fmt.Errorf("creating booking block: %w", err)
	}

	log.Printf("Held %s to %s for booking %s", block.StartAt.Format("2006-01-02"), block.EndAt.Format("2006-01-02"), booking.ID)
	return nil
}

// releaseDates frees the dates held by a canceled, expired, or failed
// booking.
func (b *Bridge) releaseDates(ctx context.Context, booking models.Booking) error {
	existing, err := b.availRepo.GetByBookingID(ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("looking up booking block: %w", err)
	}
	if existing == nil {
		return nil
	}

	if err := b.availRepo.UpdateStatus(ctx, existing.ID, models.BlockStatusAvailable); err != nil {
		return fmt.Errorf("releasing booking block: %w", err)
	}

	log.Printf("Released dates for booking %s (%s)", booking.ID, booking.Status)
	return nil
}

// BookingDeleted removes the block mirroring a deleted booking.
func (b *Bridge) BookingDeleted(ctx context.Context, bookingID string) error {
	existing, err := b.availRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("looking up booking block: %w", err)
	}
	if existing == nil {
		return nil
	}
	return b.availRepo.Delete(ctx, existing.ID)
}

// RecomputeProperty rebuilds the property's booking-derived blocks from the
// full booking set. Feed-owned blocks are left alone.
func (b *Bridge) RecomputeProperty(ctx context.Context, propertyID string, bookings []models.Booking) error {
	var blocks []models.AvailabilityBlock

	for _, booking := range bookings {
		if !booking.BlocksDates() {
			continue
		}
		id := booking.ID
		summary := "Booked"
		blocks = append(blocks, models.AvailabilityBlock{
			PropertyID: propertyID,
			StartAt:    booking.CheckIn.UTC(),
			EndAt:      booking.CheckOut.UTC(),
			Status:     models.BlockStatusUnavailable,
			Source:     models.SourceBooking,
			BookingID:  &id,
			Summary:    &summary,
		})
	}

	if err := b.availRepo.ReplaceBookingBlocks(ctx, propertyID, blocks); err != nil {
		return fmt.Errorf("recomputing property availability: %w", err)
	}

	return nil
}
