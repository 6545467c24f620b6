package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rental-calendar-sync/backend/internal/reconcile"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// PartnerSyncRequest describes one bidirectional partner sync invocation.
type PartnerSyncRequest struct {
	PropertyID         string `json:"property_id"`
	ImportURL          string `json:"import_url"`
	ExportURL          string `json:"export_url"`
	ConflictResolution string `json:"conflict_resolution"`
}

// PartnerSyncResult is returned to the partner-sync caller.
type PartnerSyncResult struct {
	Success         bool      `json:"success"`
	EventsProcessed int       `json:"events_processed"`
	Conflicts       int       `json:"conflicts,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	LastSync        time.Time `json:"last_sync"`
}

// BidirectionalService round-trips a property's availability with a partner
// platform: import the partner's events, then export the canonical timeline
// back. Collisions are settled at event granularity by an explicit partner
// policy, independent of the priority-ranked feed pipeline.
type BidirectionalService struct {
	availRepo  *storage.AvailabilityRepository
	parser     *Parser
	httpClient *http.Client
}

// NewBidirectionalService creates a new partner sync facade.
func NewBidirectionalService(availRepo *storage.AvailabilityRepository, fetchTimeout time.Duration) *BidirectionalService {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &BidirectionalService{
		availRepo: availRepo,
		parser:    NewParser(fetchTimeout),
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// partnerFeedKey is the synthetic feed identity under which partner-imported
// blocks are keyed, so re-running the same partner sync upserts in place.
func partnerFeedKey(propertyID string) string {
	return "partner-" + propertyID
}

// Sync performs a three-way merge: import with the requested policy, then
// export the resulting canonical timeline to the partner's endpoint.
func (s *BidirectionalService) Sync(ctx context.Context, req PartnerSyncRequest) (*PartnerSyncResult, error) {
	policy, err := reconcile.ParsePartnerPolicy(req.ConflictResolution)
	if err != nil {
		return nil, err
	}
	if req.PropertyID == "" {
		return nil, fmt.Errorf("property ID is required")
	}

	result := &PartnerSyncResult{LastSync: time.Now().UTC()}

	if req.ImportURL != "" {
		if err := s.runImport(ctx, req.PropertyID, req.ImportURL, policy, result); err != nil {
			return result, err
		}
	}

	if req.ExportURL != "" {
		if err := s.runExport(ctx, req.PropertyID, req.ExportURL); err != nil {
			return result, err
		}
	}

	result.Success = true
	return result, nil
}

// runImport ingests the partner's feed under the partner policy.
func (s *BidirectionalService) runImport(ctx context.Context, propertyID, importURL string, policy reconcile.PartnerPolicy, result *PartnerSyncResult) error {
	events, warnings, err := s.parser.FetchAndParse(ctx, importURL)
	if err != nil {
		return fmt.Errorf("importing partner feed: %w", err)
	}
	result.Warnings = warnings

	feedKey := partnerFeedKey(propertyID)
	seen := make(map[string]bool, len(events))

	for _, event := range events {
		seen[event.ExternalID] = true

		overlaps, err := s.availRepo.FindOverlapping(ctx, propertyID, event.Start, event.End)
		if err != nil {
			return fmt.Errorf("finding overlaps: %w", err)
		}

		foreign := foreignOverlaps(overlaps, feedKey, event.ExternalID)
		decision := reconcile.ResolvePartner(policy, foreign, event)

		switch decision.Outcome {
		case reconcile.Reject:
			result.Conflicts++
			result.Warnings = append(result.Warnings, decision.Warning)

		case reconcile.ManualHold:
			// Both sides are retained, each tagged as a conflict for a
			// human operator to settle.
			result.Conflicts++
			for _, block := range decision.Overlaps {
				if block.Source == models.SourceBooking {
					continue
				}
				if err := s.availRepo.UpdateStatus(ctx, block.ID, models.BlockStatusConflict); err != nil {
					return fmt.Errorf("tagging conflicting block: %w", err)
				}
			}
			if err := s.upsertPartnerBlock(ctx, propertyID, feedKey, event, models.BlockStatusConflict); err != nil {
				return err
			}

		default: // AcceptOverride
			if err := s.availRepo.DeleteByIDs(ctx, decision.Supersede); err != nil {
				return fmt.Errorf("superseding blocks: %w", err)
			}
			if err := s.upsertPartnerBlock(ctx, propertyID, feedKey, event, event.Status); err != nil {
				return err
			}
		}

		result.EventsProcessed++
	}

	if _, err := s.availRepo.DeleteMissingExternalIDs(ctx, feedKey, seen); err != nil {
		return fmt.Errorf("removing vanished partner events: %w", err)
	}

	return nil
}

// upsertPartnerBlock writes one partner event keyed by the synthetic feed id.
func (s *BidirectionalService) upsertPartnerBlock(ctx context.Context, propertyID, feedKey string, event models.NormalizedEvent, status string) error {
	block := &models.AvailabilityBlock{
		PropertyID:      propertyID,
		StartAt:         event.Start,
		EndAt:           event.End,
		Status:          status,
		Source:          models.SourceCalendarSync,
		ExternalEventID: &event.ExternalID,
		FeedID:          &feedKey,
	}
	if event.Summary != "" {
		summary := event.Summary
		block.Summary = &summary
	}

	if _, err := s.availRepo.UpsertByExternalID(ctx, block); err != nil {
		return fmt.Errorf("upserting partner block: %w", err)
	}
	return nil
}

// runExport serializes the canonical timeline and posts it to the partner.
func (s *BidirectionalService) runExport(ctx context.Context, propertyID, exportURL string) error {
	blocks, err := s.availRepo.ListByProperty(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("listing property blocks: %w", err)
	}

	document := Serialize(propertyID, blocks)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, exportURL, strings.NewReader(document))
	if err != nil {
		return fmt.Errorf("building export request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exporting to partner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("partner export returned status %d", resp.StatusCode)
	}

	return nil
}

// foreignOverlaps drops the partner event's own prior ingestion from the
// overlap set, leaving the blocks the event actually collides with.
func foreignOverlaps(overlaps []models.AvailabilityBlock, feedKey, externalID string) []models.AvailabilityBlock {
	var foreign []models.AvailabilityBlock
	for _, block := range overlaps {
		if block.FeedID != nil && *block.FeedID == feedKey &&
			block.ExternalEventID != nil && *block.ExternalEventID == externalID {
			continue
		}
		foreign = append(foreign, block)
	}
	return foreign
}
