// Package models contains the domain models for the application.
package models

import (
	"time"
)

// CalendarFeed represents an external availability calendar (iCal feed)
// attached to a property.
type CalendarFeed struct {
	ID               string          `json:"id"`
	PropertyID       string          `json:"property_id"`
	Name             string          `json:"name"`
	URL              string          `json:"url"`
	Direction        string          `json:"direction"`
	SyncFrequencyMin int             `json:"sync_frequency_min"`
	Priority         int             `json:"priority"`
	Enabled          bool            `json:"enabled"`
	LastSyncAt       *time.Time      `json:"last_sync_at,omitempty"`
	LastSyncStatus   *string         `json:"last_sync_status,omitempty"`
	LastSyncResult   *FeedSyncResult `json:"last_sync_result,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Feed direction constants
const (
	DirectionImport = "import"
	DirectionExport = "export"
)

// Sync status constants
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// MinSyncFrequencyMin is the lowest sync frequency a feed may be configured
// with. Feeds below this are rejected at configuration time.
const MinSyncFrequencyMin = 15

// FeedSyncResult is the persisted summary of the most recent sync run.
type FeedSyncResult struct {
	EventsProcessed int      `json:"events_processed"`
	Conflicts       int      `json:"conflicts"`
	Warnings        []string `json:"warnings,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// Due reports whether the feed should be picked up by the scheduler at now.
// Disabled feeds are never due; force bypasses the frequency gate.
func (f *CalendarFeed) Due(now time.Time, force bool) bool {
	if !f.Enabled {
		return false
	}
	if force {
		return true
	}
	if f.LastSyncAt == nil {
		return true
	}
	return now.Sub(*f.LastSyncAt) >= time.Duration(f.SyncFrequencyMin)*time.Minute
}

// NormalizedEvent is a single timezone-corrected event produced by the feed
// parser. Start and End are UTC instants with End exclusive.
type NormalizedEvent struct {
	ExternalID string    `json:"external_id"`
	Summary    string    `json:"summary"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
}

// SyncRunResult contains the in-memory outcome of a single feed sync run.
type SyncRunResult struct {
	FeedID          string    `json:"feed_id"`
	FeedName        string    `json:"feed_name"`
	PropertyID      string    `json:"property_id"`
	EventsProcessed int       `json:"events_processed"`
	BlocksCreated   int       `json:"blocks_created"`
	BlocksUpdated   int       `json:"blocks_updated"`
	BlocksRemoved   int       `json:"blocks_removed"`
	Conflicts       int       `json:"conflicts"`
	Warnings        []string  `json:"warnings,omitempty"`
	Error           error     `json:"-"`
	SyncedAt        time.Time `json:"synced_at"`
}

// Summary converts the run result into the persisted feed sync summary.
func (r *SyncRunResult) Summary() *FeedSyncResult {
	s := &FeedSyncResult{
		EventsProcessed: r.EventsProcessed,
		Conflicts:       r.Conflicts,
		Warnings:        r.Warnings,
	}
	if r.Error != nil {
		s.Message = r.Error.Error()
	}
	return s
}
