package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

func strptr(s string) *string { return &s }

func TestSerialize_OmitsAvailableBlocks(t *testing.T) {
	blocks := []models.AvailabilityBlock{
		{
			ID:      "blk-1",
			StartAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
			Status:  models.BlockStatusUnavailable,
			Summary: strptr("Booked"),
		},
		{
			ID:      "blk-2",
			StartAt: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC),
			Status:  models.BlockStatusAvailable,
		},
	}

	doc := Serialize("prop-1", blocks)

	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 1 {
		t.Fatalf("VEVENT count = %d, want 1", got)
	}
	if !strings.Contains(doc, "UID:blk-1@prop-1") {
		t.Errorf("missing stable UID, got:\n%s", doc)
	}
	if !strings.Contains(doc, "STATUS:CONFIRMED") {
		t.Errorf("missing STATUS:CONFIRMED")
	}
	if !strings.Contains(doc, "DTSTART:20240601T000000Z") {
		t.Errorf("missing UTC DTSTART")
	}
}

// An event carrying a non-UTC offset must survive a parse/serialize round
// trip with identical UTC instants.
func TestSerialize_TimezoneRoundTrip(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"UID:rt-1\r\n" +
		"DTSTART;TZID=Europe/Paris:20240601T140000\r\n" +
		"DTEND;TZID=Europe/Paris:20240603T100000\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, _, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	block := models.AvailabilityBlock{
		ID:      "rt-1",
		StartAt: events[0].Start,
		EndAt:   events[0].End,
		Status:  models.BlockStatusUnavailable,
	}

	exported := Serialize("prop-1", []models.AvailabilityBlock{block})

	reparsed, _, err := p.Parse(strings.NewReader(exported))
	if err != nil {
		t.Fatalf("unexpected error reparsing export: %v", err)
	}
	if len(reparsed) != 1 {
		t.Fatalf("reparsed events = %d, want 1", len(reparsed))
	}

	if !reparsed[0].Start.Equal(events[0].Start) {
		t.Errorf("round-trip Start = %v, want %v", reparsed[0].Start, events[0].Start)
	}
	if !reparsed[0].End.Equal(events[0].End) {
		t.Errorf("round-trip End = %v, want %v", reparsed[0].End, events[0].End)
	}
}

func TestSerialize_EscapesText(t *testing.T) {
	blocks := []models.AvailabilityBlock{
		{
			ID:      "esc-1",
			StartAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			EndAt:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
			Status:  models.BlockStatusUnavailable,
			Summary: strptr("Smith, John; suite"),
		},
	}

	doc := Serialize("prop-1", blocks)
	if !strings.Contains(doc, `SUMMARY:Smith\, John\; suite`) {
		t.Errorf("summary not escaped, got:\n%s", doc)
	}
}
