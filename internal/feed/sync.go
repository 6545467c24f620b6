package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rental-calendar-sync/backend/internal/reconcile"
	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

var (
	// ErrFeedNotFound is returned when a sync targets an unknown feed.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrNotImportFeed is returned when a sync targets an export feed.
	ErrNotImportFeed = errors.New("feed is not an import feed")
)

// SyncService drives a feed's synchronization lifecycle:
// fetch -> parse -> reconcile -> persist -> report.
type SyncService struct {
	feedRepo  *storage.FeedRepository
	availRepo *storage.AvailabilityRepository
	parser    *Parser
	resolver  *reconcile.Resolver

	// feedLocks serializes runs per feed. Runs for different feeds execute
	// concurrently, but a run must never start while a prior run for the
	// same feed is still persisting.
	feedLocks   map[string]*sync.Mutex
	feedLocksMu sync.Mutex
}

// NewSyncService creates a new feed sync service.
func NewSyncService(
	feedRepo *storage.FeedRepository,
	availRepo *storage.AvailabilityRepository,
	fetchTimeout time.Duration,
) *SyncService {
	return &SyncService{
		feedRepo:  feedRepo,
		availRepo: availRepo,
		parser:    NewParser(fetchTimeout),
		resolver:  reconcile.NewResolver(),
		feedLocks: make(map[string]*sync.Mutex),
	}
}

// lockFeed returns the mutex guarding runs for one feed.
func (s *SyncService) lockFeed(feedID string) *sync.Mutex {
	s.feedLocksMu.Lock()
	defer s.feedLocksMu.Unlock()

	mu, ok := s.feedLocks[feedID]
	if !ok {
		mu = &sync.Mutex{}
		s.feedLocks[feedID] = mu
	}
	return mu
}

// SyncFeed runs one full synchronization for a single feed and returns the
// run result. All failures are contained: the feed's status fields record
// the outcome and nothing propagates past this boundary except the returned
// result's Error. The feed's last-sync bookkeeping is updated exactly once
// per run regardless of outcome.
func (s *SyncService) SyncFeed(ctx context.Context, feedID string) (*models.SyncRunResult, error) {
	feed, err := s.feedRepo.GetByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("getting feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	if feed.Direction != models.DirectionImport {
		return nil, fmt.Errorf("%w: %s", ErrNotImportFeed, feedID)
	}

	mu := s.lockFeed(feed.ID)
	mu.Lock()
	defer mu.Unlock()

	result := s.run(ctx, feed)

	// Report: record timestamp, status, and summary exactly once.
	status := models.SyncStatusSuccess
	if result.Error != nil {
		status = models.SyncStatusError
	}
	if err := s.feedRepo.RecordSyncOutcome(ctx, feed.ID, status, result.Summary(), result.SyncedAt); err != nil {
		log.Printf("Failed to record sync outcome for feed %s: %v", feed.ID, err)
	}

	return result, result.Error
}

// run executes the fetch/parse/reconcile/persist stages for one feed.
func (s *SyncService) run(ctx context.Context, feed *models.CalendarFeed) *models.SyncRunResult {
	result := &models.SyncRunResult{
		FeedID:     feed.ID,
		FeedName:   feed.Name,
		PropertyID: feed.PropertyID,
		SyncedAt:   time.Now().UTC(),
	}

	// Fetching + Parsing
	events, warnings, err := s.parser.FetchAndParse(ctx, feed.URL)
	if err != nil {
		result.Error = err
		return result
	}
	result.Warnings = warnings

	// Reconciling: arbitrate each event against the blocks already
	// occupying its range, then apply the decision.
	seen := make(map[string]bool, len(events))
	for _, event := range events {
		seen[event.ExternalID] = true

		if err := s.applyEvent(ctx, feed, event, result); err != nil {
			// A store write failure aborts the rest of this feed's run.
			result.Error = fmt.Errorf("persisting event %s: %w", event.ExternalID, err)
			return result
		}
		result.EventsProcessed++
	}

	// Persisting: drop this feed's blocks whose events vanished from the
	// source rather than being marked cancelled.
	removed, err := s.availRepo.DeleteMissingExternalIDs(ctx, feed.ID, seen)
	if err != nil {
		result.Error = fmt.Errorf("removing vanished events: %w", err)
		return result
	}
	result.BlocksRemoved = removed

	return result
}

// applyEvent reconciles and persists a single normalized event.
func (s *SyncService) applyEvent(ctx context.Context, feed *models.CalendarFeed, event models.NormalizedEvent, result *models.SyncRunResult) error {
	overlaps, err := s.availRepo.FindOverlapping(ctx, feed.PropertyID, event.Start, event.End)
	if err != nil {
		return fmt.Errorf("finding overlaps: %w", err)
	}

	decision := s.resolver.Resolve(event, feed, overlaps)

	if decision.Outcome == reconcile.Reject {
		result.Conflicts++
		result.Warnings = append(result.Warnings, decision.Warning)
		return nil
	}

	if err := s.availRepo.DeleteByIDs(ctx, decision.Supersede); err != nil {
		return fmt.Errorf("superseding blocks: %w", err)
	}

	priority := feed.Priority
	block := &models.AvailabilityBlock{
		PropertyID:      feed.PropertyID,
		StartAt:         event.Start,
		EndAt:           event.End,
		Status:          event.Status,
		Source:          models.SourceCalendarSync,
		ExternalEventID: &event.ExternalID,
		FeedID:          &feed.ID,
		FeedPriority:    &priority,
	}
	if event.Summary != "" {
		summary := event.Summary
		block.Summary = &summary
	}

	created, err := s.availRepo.UpsertByExternalID(ctx, block)
	if err != nil {
		return err
	}

	if created {
		result.BlocksCreated++
	} else {
		result.BlocksUpdated++
	}

	return nil
}

// RunSummary aggregates the outcomes of a batch of feed runs.
type RunSummary struct {
	Success int                    `json:"success"`
	Errors  int                    `json:"error"`
	Skipped int                    `json:"skipped"`
	Results []models.SyncRunResult `json:"results,omitempty"`
}

// SyncAll runs every enabled import feed that is due at now. With force set,
// the frequency gate is bypassed and every enabled feed resyncs. Feeds run
// concurrently and one feed's failure never blocks or fails the others.
func (s *SyncService) SyncAll(ctx context.Context, force bool) (*RunSummary, error) {
	feeds, err := s.feedRepo.ListEnabledImports(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled feeds: %w", err)
	}

	summary := &RunSummary{}
	now := time.Now().UTC()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, f := range feeds {
		if !f.Due(now, force) {
			summary.Skipped++
			continue
		}

		wg.Add(1)
		go func(feedID string) {
			defer wg.Done()

			result, err := s.SyncFeed(ctx, feedID)
			if err != nil {
				log.Printf("Feed sync failed for %s: %v", feedID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if result != nil {
				summary.Results = append(summary.Results, *result)
			}
			if err != nil {
				summary.Errors++
			} else {
				summary.Success++
			}
		}(f.ID)
	}

	wg.Wait()

	return summary, nil
}
