package feed

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Partner//Booking//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-1\r\n" +
	"SUMMARY:Reserved\r\n" +
	"DTSTART:20240601T000000Z\r\n" +
	"DTEND:20240605T000000Z\r\n" +
	"STATUS:CONFIRMED\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-2\r\n" +
	"SUMMARY:Blocked\r\n" +
	"DTSTART;VALUE=DATE:20240710\r\n" +
	"DTEND;VALUE=DATE:20240712\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse_MultipleEvents(t *testing.T) {
	p := NewParser(0)

	events, warnings, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	first := events[0]
	if first.ExternalID != "evt-1" {
		t.Errorf("ExternalID = %q, want evt-1", first.ExternalID)
	}
	if first.Status != models.BlockStatusUnavailable {
		t.Errorf("Status = %q, want unavailable", first.Status)
	}
	wantStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !first.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", first.Start, wantStart)
	}

	// Date-only values are midnight UTC with no TZID.
	second := events[1]
	wantStart = time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	if !second.Start.Equal(wantStart) {
		t.Errorf("date-only Start = %v, want %v", second.Start, wantStart)
	}
	if second.Status != models.BlockStatusUnavailable {
		t.Errorf("absent STATUS = %q, want unavailable", second.Status)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	p := NewParser(0)

	events, warnings, err := p.Parse(strings.NewReader("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || len(warnings) != 0 {
		t.Errorf("events = %d, warnings = %d, want 0 and 0", len(events), len(warnings))
	}
}

func TestParse_MalformedEventSkippedWithWarning(t *testing.T) {
	doc := "BEGIN:VCALENDAR\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:bad-1\r\n" +
		"DTSTART:not-a-date\r\n" +
		"DTEND:20240605T000000Z\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:good-1\r\n" +
		"DTSTART:20240601T000000Z\r\n" +
		"DTEND:20240602T000000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	p := NewParser(0)
	events, warnings, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 1 || events[0].ExternalID != "good-1" {
		t.Fatalf("events = %+v, want only good-1", events)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "bad-1") {
		t.Errorf("warnings = %v, want one naming bad-1", warnings)
	}
}

func TestParse_MissingUIDSkipped(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"DTSTART:20240601T000000Z\r\n" +
		"DTEND:20240602T000000Z\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, warnings, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one", warnings)
	}
}

func TestParse_TZIDNormalizedToUTC(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"UID:tz-1\r\n" +
		"DTSTART;TZID=America/New_York:20240601T150000\r\n" +
		"DTEND;TZID=America/New_York:20240601T170000\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, _, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	// 15:00 EDT is 19:00 UTC.
	wantStart := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	if !events[0].Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", events[0].Start, wantStart)
	}
	if events[0].Start.Location() != time.UTC {
		t.Errorf("Start location = %v, want UTC", events[0].Start.Location())
	}
}

func TestParse_UnknownTZIDIsWarning(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"UID:tz-bad\r\n" +
		"DTSTART;TZID=Nowhere/Invalid:20240601T150000\r\n" +
		"DTEND;TZID=Nowhere/Invalid:20240601T170000\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, warnings, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || len(warnings) != 1 {
		t.Errorf("events = %d, warnings = %v; want skip with warning", len(events), warnings)
	}
}

func TestParse_CancelledStatusReleasesDates(t *testing.T) {
	for _, status := range []string{"CANCELLED", "CANCELED", "cancelled"} {
		doc := "BEGIN:VEVENT\r\n" +
			"UID:c-1\r\n" +
			"DTSTART:20240601T000000Z\r\n" +
			"DTEND:20240602T000000Z\r\n" +
			"STATUS:" + status + "\r\n" +
			"END:VEVENT\r\n"

		p := NewParser(0)
		events, _, err := p.Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 1 || events[0].Status != models.BlockStatusAvailable {
			t.Errorf("status %q: got %+v, want one available event", status, events)
		}
	}
}

func TestParse_FoldedLinesUnfolded(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"UID:fold-1\r\n" +
		"SUMMARY:Reserved for a very long\r\n" +
		" guest name\r\n" +
		"DTSTART:20240601T000000Z\r\n" +
		"DTEND:20240602T000000Z\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, _, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Summary != "Reserved for a very longguest name" {
		t.Errorf("Summary = %q", events[0].Summary)
	}
}

func TestParse_EndNotAfterStartSkipped(t *testing.T) {
	doc := "BEGIN:VEVENT\r\n" +
		"UID:inv-1\r\n" +
		"DTSTART:20240602T000000Z\r\n" +
		"DTEND:20240601T000000Z\r\n" +
		"END:VEVENT\r\n"

	p := NewParser(0)
	events, warnings, err := p.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 || len(warnings) != 1 {
		t.Errorf("events = %d, warnings = %v; want skip with warning", len(events), warnings)
	}
}

func TestParse_IsPure(t *testing.T) {
	p := NewParser(0)

	first, firstWarnings, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, secondWarnings, err := p.Parse(strings.NewReader(sampleFeed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing the same document twice differed:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(firstWarnings, secondWarnings) {
		t.Errorf("warnings differed across parses")
	}
}
