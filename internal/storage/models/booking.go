package models

import (
	"time"
)

// Booking mirrors the reservation record owned by the surrounding
// application. The sync core only reads its date range and status and
// projects it onto the availability timeline; it never creates or deletes
// bookings itself.
type Booking struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Status     string    `json:"status"`
}

// Booking status constants
const (
	BookingStatusPending       = "pending"
	BookingStatusConfirmed     = "confirmed"
	BookingStatusExpired       = "expired"
	BookingStatusCanceled      = "canceled"
	BookingStatusPaymentFailed = "payment_failed"
)

// BlocksDates reports whether the booking should hold its date range on the
// availability timeline.
func (b *Booking) BlocksDates() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}
