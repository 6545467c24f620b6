package reconcile

import (
	"fmt"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// PartnerPolicy selects how event-level collisions are settled during
// bidirectional partner sync. This is a binary two-party negotiation and is
// deliberately independent of the priority-ranked feed path.
type PartnerPolicy string

const (
	// KeepRemote lets the partner's event win over local data.
	KeepRemote PartnerPolicy = "keep_remote"

	// KeepLocal keeps the local block and discards the partner's event.
	KeepLocal PartnerPolicy = "keep_local"

	// Manual retains both sides tagged status=conflict for an operator.
	Manual PartnerPolicy = "manual"
)

// ParsePartnerPolicy validates a policy string from the partner-sync API.
func ParsePartnerPolicy(s string) (PartnerPolicy, error) {
	switch PartnerPolicy(s) {
	case KeepRemote, KeepLocal, Manual:
		return PartnerPolicy(s), nil
	case "keep_airbnb": // legacy name for the remote-wins policy
		return KeepRemote, nil
	case "":
		return KeepRemote, nil
	default:
		return "", fmt.Errorf("unknown conflict resolution policy %q", s)
	}
}

// ResolvePartner decides an event-level collision between a partner event and
// every local block occupying its range. An empty overlap set means no
// collision and the remote event is taken as-is. Booking-held blocks are
// never superseded regardless of policy.
func ResolvePartner(policy PartnerPolicy, overlaps []models.AvailabilityBlock, remote models.NormalizedEvent) Decision {
	decision := Decision{Candidate: remote, Overlaps: overlaps}

	if len(overlaps) == 0 {
		decision.Outcome = AcceptOverride
		return decision
	}

	switch policy {
	case KeepLocal:
		decision.Outcome = Reject
		decision.Warning = fmt.Sprintf("Skipped partner event %s: local data kept", remote.ExternalID)
	case Manual:
		decision.Outcome = ManualHold
	default: // KeepRemote
		decision.Outcome = AcceptOverride
		for _, block := range overlaps {
			if block.Source == models.SourceBooking {
				continue
			}
			decision.Supersede = append(decision.Supersede, block.ID)
		}
	}

	return decision
}
