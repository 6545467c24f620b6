// Package reconcile decides whether incoming feed events may claim a date
// range on a property's availability timeline.
package reconcile

import (
	"fmt"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// Outcome is the resolution result for a candidate event.
type Outcome int

const (
	// AcceptOverride accepts the candidate; outranked overlapping blocks
	// are removed.
	AcceptOverride Outcome = iota

	// Reject skips the candidate because an overlapping block outranks it.
	Reject

	// ManualHold retains both sides tagged as conflicts for an operator
	// to resolve. Only produced by the partner-sync manual policy.
	ManualHold
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	switch o {
	case AcceptOverride:
		return "accept-override"
	case Reject:
		return "reject"
	case ManualHold:
		return "manual-hold"
	default:
		return "unknown"
	}
}

// Decision pairs a candidate event with the blocks it collided with and the
// resolution outcome. Decisions are transient; they are never persisted.
type Decision struct {
	Outcome   Outcome
	Candidate models.NormalizedEvent
	Overlaps  []models.AvailabilityBlock

	// Supersede lists the IDs of overlapping blocks the candidate replaces.
	// Populated only for AcceptOverride.
	Supersede []string

	// Warning carries the operator-visible message for rejections.
	Warning string
}

// Resolver arbitrates between a candidate event and the blocks already
// occupying its date range, using the priority snapshot captured when each
// block was written.
type Resolver struct{}

// NewResolver creates a new conflict resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve computes the decision for a candidate from the given feed against
// the blocks currently overlapping its range.
//
// The rule is all-or-nothing: the candidate lands only if the feed's priority
// is greater than or equal to the snapshot priority of every overlapping
// block, in which case all of them are superseded. Equal priority overrides;
// fetch order then determines the winner across runs. A missing snapshot
// ranks lowest and is always overridable. First-party booking blocks are
// never superseded by feed data: any overlap with one rejects the candidate.
func (r *Resolver) Resolve(candidate models.NormalizedEvent, feed *models.CalendarFeed, overlaps []models.AvailabilityBlock) Decision {
	decision := Decision{
		Outcome:   AcceptOverride,
		Candidate: candidate,
	}

	for _, block := range overlaps {
		// The candidate's own prior ingestion is an update target, not a
		// conflict.
		if block.FeedID != nil && *block.FeedID == feed.ID &&
			block.ExternalEventID != nil && *block.ExternalEventID == candidate.ExternalID {
			continue
		}

		decision.Overlaps = append(decision.Overlaps, block)

		if block.Source == models.SourceBooking {
			decision.Outcome = Reject
			continue
		}

		if feed.Priority < block.SnapshotPriority() {
			decision.Outcome = Reject
		}
	}

	if decision.Outcome == Reject {
		decision.Supersede = nil
		decision.Warning = fmt.Sprintf("Skipped event %s due to higher priority conflict", candidate.ExternalID)
		return decision
	}

	for _, block := range decision.Overlaps {
		decision.Supersede = append(decision.Supersede, block.ID)
	}

	return decision
}
