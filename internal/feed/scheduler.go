package feed

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rental-calendar-sync/backend/internal/websocket"
)

// Scheduler periodically selects feeds due for sync and dispatches runs.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	broadcaster *websocket.EventBroadcaster

	// tickInterval controls how often due-feed selection runs. Individual
	// feeds gate themselves on their configured sync frequency.
	tickInterval time.Duration
}

// NewScheduler creates a new feed sync scheduler.
func NewScheduler(syncService *SyncService, hub *websocket.Hub, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}

	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub)
	}

	return &Scheduler{
		cron:         cron.New(),
		syncService:  syncService,
		broadcaster:  broadcaster,
		tickInterval: tickInterval,
	}
}

// Start begins the periodic due-feed selection loop.
func (s *Scheduler) Start() error {
	log.Println("Starting feed sync scheduler...")

	_, err := s.cron.AddFunc("@every "+s.tickInterval.String(), func() {
		s.tick(context.Background(), false)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Feed scheduler started (tick every %s)", s.tickInterval)

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight runs.
func (s *Scheduler) Stop() {
	log.Println("Stopping feed sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Feed scheduler stopped")
}

// NextTick returns the time of the next scheduled selection pass.
func (s *Scheduler) NextTick() *time.Time {
	for _, entry := range s.cron.Entries() {
		if !entry.Next.IsZero() {
			next := entry.Next
			return &next
		}
	}
	return nil
}

// TriggerSync dispatches an immediate run for one feed, off the caller's
// request path.
func (s *Scheduler) TriggerSync(feedID string) {
	go func() {
		ctx := context.Background()
		result, err := s.syncService.SyncFeed(ctx, feedID)
		if err != nil {
			log.Printf("On-demand sync failed for feed %s: %v", feedID, err)
		}
		if result != nil && s.broadcaster != nil {
			s.broadcaster.BroadcastFeedSync(*result)
		}
	}()
}

// ForceSyncAll resyncs every enabled feed regardless of last-run recency.
// Used for operator-triggered full refresh.
func (s *Scheduler) ForceSyncAll() {
	go s.tick(context.Background(), true)
}

// tick runs one due-feed selection pass.
func (s *Scheduler) tick(ctx context.Context, force bool) {
	summary, err := s.syncService.SyncAll(ctx, force)
	if err != nil {
		log.Printf("Feed selection pass failed: %v", err)
		return
	}

	if summary.Success+summary.Errors > 0 {
		log.Printf("Feed sync pass complete: %d success, %d error, %d skipped",
			summary.Success, summary.Errors, summary.Skipped)
	}

	if s.broadcaster != nil {
		for _, result := range summary.Results {
			s.broadcaster.BroadcastFeedSync(result)
		}
	}
}
