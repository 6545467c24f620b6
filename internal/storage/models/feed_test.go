package models

import (
	"errors"
	"testing"
	"time"
)

func TestFeedDue(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name  string
		feed  CalendarFeed
		force bool
		want  bool
	}{
		{"never synced", CalendarFeed{Enabled: true, SyncFrequencyMin: 60}, false, true},
		{"interval elapsed", CalendarFeed{Enabled: true, SyncFrequencyMin: 60, LastSyncAt: earlier(90 * time.Minute)}, false, true},
		{"interval exactly elapsed", CalendarFeed{Enabled: true, SyncFrequencyMin: 60, LastSyncAt: earlier(60 * time.Minute)}, false, true},
		{"within interval", CalendarFeed{Enabled: true, SyncFrequencyMin: 60, LastSyncAt: earlier(30 * time.Minute)}, false, false},
		{"within interval forced", CalendarFeed{Enabled: true, SyncFrequencyMin: 60, LastSyncAt: earlier(30 * time.Minute)}, true, true},
		{"disabled", CalendarFeed{Enabled: false, SyncFrequencyMin: 60}, false, false},
		{"disabled forced", CalendarFeed{Enabled: false, SyncFrequencyMin: 60}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.feed.Due(now, tt.force); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSyncRunResultSummary(t *testing.T) {
	r := SyncRunResult{
		EventsProcessed: 3,
		Conflicts:       1,
		Warnings:        []string{"w1"},
	}

	s := r.Summary()
	if s.EventsProcessed != 3 || s.Conflicts != 1 || len(s.Warnings) != 1 {
		t.Errorf("summary = %+v, want counts carried over", s)
	}
	if s.Message != "" {
		t.Errorf("message = %q, want empty on success", s.Message)
	}

	r.Error = errors.New("fetch exploded")
	s = r.Summary()
	if s.Message != "fetch exploded" {
		t.Errorf("message = %q, want the error text", s.Message)
	}
}

func TestBlocksDates(t *testing.T) {
	holds := map[string]bool{
		BookingStatusPending:       true,
		BookingStatusConfirmed:     true,
		BookingStatusExpired:       false,
		BookingStatusCanceled:      false,
		BookingStatusPaymentFailed: false,
	}

	for status, want := range holds {
		b := Booking{Status: status}
		if got := b.BlocksDates(); got != want {
			t.Errorf("BlocksDates(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestBlockOverlaps(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	}
	block := AvailabilityBlock{StartAt: day(5), EndAt: day(10)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", day(6), day(8), true},
		{"spanning", day(1), day(20), true},
		{"touching start", day(1), day(5), false},
		{"touching end", day(10), day(15), false},
		{"disjoint", day(20), day(25), false},
	}

	for _, tt := range tests {
		if got := block.Overlaps(tt.start, tt.end); got != tt.want {
			t.Errorf("%s: Overlaps = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSnapshotPriority(t *testing.T) {
	p := 7
	with := AvailabilityBlock{FeedPriority: &p}
	if with.SnapshotPriority() != 7 {
		t.Errorf("SnapshotPriority = %d, want 7", with.SnapshotPriority())
	}

	var without AvailabilityBlock
	if got := without.SnapshotPriority(); got >= 0 {
		t.Errorf("SnapshotPriority = %d, want a value below any real priority", got)
	}
}
