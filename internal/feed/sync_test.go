package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage"
	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

func newSyncFixture(t *testing.T) (*SyncService, *storage.FeedRepository, *storage.AvailabilityRepository) {
	t.Helper()

	db, err := storage.NewMemoryDB()
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	feedRepo := storage.NewFeedRepository(db)
	availRepo := storage.NewAvailabilityRepository(db)
	svc := NewSyncService(feedRepo, availRepo, 5*time.Second)

	return svc, feedRepo, availRepo
}

func createImportFeed(t *testing.T, repo *storage.FeedRepository, propertyID, name, url string, priority int) *models.CalendarFeed {
	t.Helper()

	f := &models.CalendarFeed{
		PropertyID:       propertyID,
		Name:             name,
		URL:              url,
		Direction:        models.DirectionImport,
		SyncFrequencyMin: 60,
		Priority:         priority,
		Enabled:          true,
	}
	if err := repo.Create(context.Background(), f); err != nil {
		t.Fatalf("creating feed %s: %v", name, err)
	}
	return f
}

func icalDocument(events ...string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n")
	for _, e := range events {
		b.WriteString(e)
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func icalEvent(uid, start, end, summary string) string {
	return fmt.Sprintf(
		"BEGIN:VEVENT\r\nUID:%s\r\nDTSTART:%s\r\nDTEND:%s\r\nSUMMARY:%s\r\nSTATUS:CONFIRMED\r\nEND:VEVENT\r\n",
		uid, start, end, summary,
	)
}

func serveICal(t *testing.T, doc *string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		fmt.Fprint(w, *doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncFeed_CreatesBlocks(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	doc := icalDocument(
		icalEvent("evt-1", "20240601", "20240605", "Booking via OTA"),
		icalEvent("evt-2", "20240610", "20240615", "Owner stay"),
	)
	srv := serveICal(t, &doc)

	f := createImportFeed(t, feedRepo, "prop-1", "Airbnb", srv.URL, 5)

	result, err := svc.SyncFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.EventsProcessed != 2 || result.BlocksCreated != 2 {
		t.Errorf("processed=%d created=%d, want 2/2", result.EventsProcessed, result.BlocksCreated)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	for _, b := range blocks {
		if b.Source != models.SourceCalendarSync {
			t.Errorf("block source = %s, want %s", b.Source, models.SourceCalendarSync)
		}
		if b.FeedPriority == nil || *b.FeedPriority != 5 {
			t.Errorf("block priority snapshot = %v, want 5", b.FeedPriority)
		}
	}

	updated, err := feedRepo.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("reloading feed: %v", err)
	}
	if updated.LastSyncStatus == nil || *updated.LastSyncStatus != models.SyncStatusSuccess {
		t.Errorf("last sync status = %v, want success", updated.LastSyncStatus)
	}
	if updated.LastSyncAt == nil {
		t.Errorf("last sync timestamp not recorded")
	}
	if updated.LastSyncResult == nil || updated.LastSyncResult.EventsProcessed != 2 {
		t.Errorf("last sync result = %+v, want 2 events", updated.LastSyncResult)
	}
}

func TestSyncFeed_RepeatRunIsIdempotent(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	doc := icalDocument(icalEvent("evt-1", "20240601", "20240605", "Booking"))
	srv := serveICal(t, &doc)
	f := createImportFeed(t, feedRepo, "prop-1", "Airbnb", srv.URL, 5)

	if _, err := svc.SyncFeed(ctx, f.ID); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	result, err := svc.SyncFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.BlocksCreated != 0 || result.BlocksUpdated != 1 {
		t.Errorf("created=%d updated=%d, want 0/1 on re-run", result.BlocksCreated, result.BlocksUpdated)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1 after re-run", len(blocks))
	}
}

func TestSyncFeed_VanishedEventRemoved(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	doc := icalDocument(
		icalEvent("evt-1", "20240601", "20240605", "Booking"),
		icalEvent("evt-2", "20240610", "20240615", "Booking"),
	)
	srv := serveICal(t, &doc)
	f := createImportFeed(t, feedRepo, "prop-1", "Airbnb", srv.URL, 5)

	if _, err := svc.SyncFeed(ctx, f.ID); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// evt-2 disappears from the source entirely.
	doc = icalDocument(icalEvent("evt-1", "20240601", "20240605", "Booking"))

	result, err := svc.SyncFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.BlocksRemoved != 1 {
		t.Errorf("removed = %d, want 1", result.BlocksRemoved)
	}

	blocks, err := availRepo.ListByFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 1 || *blocks[0].ExternalEventID != "evt-1" {
		t.Fatalf("blocks = %+v, want only evt-1", blocks)
	}
}

func TestSyncFeed_FetchFailureRecordsError(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	f := createImportFeed(t, feedRepo, "prop-1", "Flaky", srv.URL, 5)

	result, err := svc.SyncFeed(ctx, f.ID)
	if err == nil {
		t.Fatalf("expected sync error")
	}
	if result == nil || result.Error == nil {
		t.Fatalf("result should carry the fetch error")
	}

	updated, err := feedRepo.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("reloading feed: %v", err)
	}
	if updated.LastSyncStatus == nil || *updated.LastSyncStatus != models.SyncStatusError {
		t.Errorf("last sync status = %v, want error", updated.LastSyncStatus)
	}
	if updated.LastSyncResult == nil || updated.LastSyncResult.Message == "" {
		t.Errorf("error message not persisted: %+v", updated.LastSyncResult)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("blocks = %d, want none after failed fetch", len(blocks))
	}
}

func TestSyncFeed_LowerPriorityRejectedAgainstExisting(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	// High-priority feed claims June 1-5.
	highDoc := icalDocument(icalEvent("e1", "20240601", "20240605", "Direct booking"))
	highSrv := serveICal(t, &highDoc)
	high := createImportFeed(t, feedRepo, "prop-1", "Direct", highSrv.URL, 5)

	if _, err := svc.SyncFeed(ctx, high.ID); err != nil {
		t.Fatalf("high-priority sync: %v", err)
	}

	// Low-priority feed tries to claim an overlapping night.
	lowDoc := icalDocument(icalEvent("e2", "20240603", "20240604", "OTA booking"))
	lowSrv := serveICal(t, &lowDoc)
	low := createImportFeed(t, feedRepo, "prop-1", "OTA", lowSrv.URL, 3)

	result, err := svc.SyncFeed(ctx, low.ID)
	if err != nil {
		t.Fatalf("low-priority sync: %v", err)
	}
	if result.Conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", result.Conflicts)
	}
	wantWarning := "Skipped event e2 due to higher priority conflict"
	found := false
	for _, w := range result.Warnings {
		if w == wantWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want %q", result.Warnings, wantWarning)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want only the high-priority block", len(blocks))
	}
	if *blocks[0].ExternalEventID != "e1" {
		t.Errorf("surviving block = %s, want e1", *blocks[0].ExternalEventID)
	}
}

func TestSyncFeed_HigherPrioritySupersedes(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	lowDoc := icalDocument(icalEvent("e-low", "20240601", "20240605", "OTA booking"))
	lowSrv := serveICal(t, &lowDoc)
	low := createImportFeed(t, feedRepo, "prop-1", "OTA", lowSrv.URL, 3)
	if _, err := svc.SyncFeed(ctx, low.ID); err != nil {
		t.Fatalf("low-priority sync: %v", err)
	}

	highDoc := icalDocument(icalEvent("e-high", "20240603", "20240604", "Direct booking"))
	highSrv := serveICal(t, &highDoc)
	high := createImportFeed(t, feedRepo, "prop-1", "Direct", highSrv.URL, 5)

	result, err := svc.SyncFeed(ctx, high.ID)
	if err != nil {
		t.Fatalf("high-priority sync: %v", err)
	}
	if result.BlocksCreated != 1 || result.Conflicts != 0 {
		t.Errorf("created=%d conflicts=%d, want 1/0", result.BlocksCreated, result.Conflicts)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 1 || *blocks[0].ExternalEventID != "e-high" {
		t.Fatalf("blocks = %+v, want only the superseding block", blocks)
	}
}

func TestSyncFeed_BookingBlockNeverOverridden(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	bookingID := "bk-1"
	booked := &models.AvailabilityBlock{
		PropertyID: "prop-1",
		StartAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndAt:      time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		Status:     models.BlockStatusUnavailable,
		Source:     models.SourceBooking,
		BookingID:  &bookingID,
	}
	if err := availRepo.Create(ctx, booked); err != nil {
		t.Fatalf("creating booking block: %v", err)
	}

	doc := icalDocument(icalEvent("e1", "20240602", "20240604", "Feed event"))
	srv := serveICal(t, &doc)
	f := createImportFeed(t, feedRepo, "prop-1", "Direct", srv.URL, 100)

	result, err := svc.SyncFeed(ctx, f.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Conflicts != 1 || result.BlocksCreated != 0 {
		t.Errorf("conflicts=%d created=%d, want 1/0", result.Conflicts, result.BlocksCreated)
	}

	still, err := availRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		t.Fatalf("reloading booking block: %v", err)
	}
	if still == nil {
		t.Fatalf("booking block was removed by a feed sync")
	}
}

func TestSyncFeed_NotAnImportFeed(t *testing.T) {
	svc, feedRepo, _ := newSyncFixture(t)
	ctx := context.Background()

	f := &models.CalendarFeed{
		PropertyID:       "prop-1",
		Name:             "Export only",
		URL:              "https://example.com/cal.ics",
		Direction:        models.DirectionExport,
		SyncFrequencyMin: 60,
		Enabled:          true,
	}
	if err := feedRepo.Create(ctx, f); err != nil {
		t.Fatalf("creating feed: %v", err)
	}

	if _, err := svc.SyncFeed(ctx, f.ID); !errors.Is(err, ErrNotImportFeed) {
		t.Fatalf("syncing an export feed: err = %v, want ErrNotImportFeed", err)
	}

	if _, err := svc.SyncFeed(ctx, "no-such-feed"); !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("syncing a missing feed: err = %v, want ErrFeedNotFound", err)
	}
}

func TestSyncAll_SkipsFeedsNotDue(t *testing.T) {
	svc, feedRepo, _ := newSyncFixture(t)
	ctx := context.Background()

	doc := icalDocument(icalEvent("e1", "20240601", "20240605", "Booking"))
	srv := serveICal(t, &doc)
	f := createImportFeed(t, feedRepo, "prop-1", "Airbnb", srv.URL, 5)

	if _, err := svc.SyncFeed(ctx, f.ID); err != nil {
		t.Fatalf("priming sync: %v", err)
	}

	// Just synced, so within the frequency window nothing is due.
	summary, err := svc.SyncAll(ctx, false)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if summary.Skipped != 1 || summary.Success != 0 {
		t.Errorf("skipped=%d success=%d, want 1/0", summary.Skipped, summary.Success)
	}

	// Force bypasses the gate.
	summary, err = svc.SyncAll(ctx, true)
	if err != nil {
		t.Fatalf("forced sync all: %v", err)
	}
	if summary.Success != 1 || summary.Skipped != 0 {
		t.Errorf("success=%d skipped=%d, want 1/0 with force", summary.Success, summary.Skipped)
	}
}

func TestSyncAll_OneFailureDoesNotBlockOthers(t *testing.T) {
	svc, feedRepo, availRepo := newSyncFixture(t)
	ctx := context.Background()

	goodDoc := icalDocument(icalEvent("e1", "20240601", "20240605", "Booking"))
	goodSrv := serveICal(t, &goodDoc)
	createImportFeed(t, feedRepo, "prop-1", "Good", goodSrv.URL, 5)

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(badSrv.Close)
	createImportFeed(t, feedRepo, "prop-2", "Bad", badSrv.URL, 5)

	summary, err := svc.SyncAll(ctx, true)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if summary.Success != 1 || summary.Errors != 1 {
		t.Errorf("success=%d errors=%d, want 1/1", summary.Success, summary.Errors)
	}

	blocks, err := availRepo.ListByProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("listing blocks: %v", err)
	}
	if len(blocks) != 1 {
		t.Errorf("good feed blocks = %d, want 1", len(blocks))
	}
}
