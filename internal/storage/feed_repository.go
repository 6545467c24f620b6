package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// FeedRepository provides data access for calendar feeds.
type FeedRepository struct {
	BaseRepository
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const feedColumns = `id, property_id, name, url, direction, sync_frequency_min, priority,
       enabled, last_sync_at, last_sync_status, last_sync_result, created_at, updated_at`

// Create inserts a new calendar feed.
func (r *FeedRepository) Create(ctx context.Context, feed *models.CalendarFeed) error {
	feed.ID = GenerateID()
	feed.CreatedAt = r.Now()
	feed.UpdatedAt = r.Now()
	if feed.Direction == "" {
		feed.Direction = models.DirectionImport
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_feeds (
			id, property_id, name, url, direction, sync_frequency_min, priority, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		feed.ID, feed.PropertyID, feed.Name, feed.URL, feed.Direction,
		feed.SyncFrequencyMin, feed.Priority, feed.Enabled, feed.CreatedAt, feed.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("inserting feed: %w", err)
	}

	return nil
}

// GetByID retrieves a feed by its ID.
func (r *FeedRepository) GetByID(ctx context.Context, id string) (*models.CalendarFeed, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+feedColumns+`
		FROM calendar_feeds WHERE id = ?
	`, id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}

	return feed, nil
}

// List retrieves all calendar feeds.
func (r *FeedRepository) List(ctx context.Context) ([]models.CalendarFeed, error) {
	return r.list(ctx, `
		SELECT `+feedColumns+`
		FROM calendar_feeds
		ORDER BY property_id, name
	`)
}

// ListByProperty retrieves all feeds configured for a property.
func (r *FeedRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.CalendarFeed, error) {
	return r.list(ctx, `
		SELECT `+feedColumns+`
		FROM calendar_feeds
		WHERE property_id = ?
		ORDER BY name
	`, propertyID)
}

// ListEnabledImports retrieves all enabled import-direction feeds, oldest
// sync first so starved feeds are picked up before fresh ones.
func (r *FeedRepository) ListEnabledImports(ctx context.Context) ([]models.CalendarFeed, error) {
	return r.list(ctx, `
		SELECT `+feedColumns+`
		FROM calendar_feeds
		WHERE enabled = 1 AND direction = ?
		ORDER BY last_sync_at ASC NULLS FIRST
	`, models.DirectionImport)
}

func (r *FeedRepository) list(ctx context.Context, query string, args ...any) ([]models.CalendarFeed, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	defer rows.Close()

	var feeds []models.CalendarFeed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	return feeds, rows.Err()
}

// Update updates an existing feed's configuration.
func (r *FeedRepository) Update(ctx context.Context, feed *models.CalendarFeed) error {
	feed.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_feeds SET
			name = ?, url = ?, direction = ?, sync_frequency_min = ?, priority = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		feed.Name, feed.URL, feed.Direction, feed.SyncFrequencyMin,
		feed.Priority, feed.Enabled, feed.UpdatedAt, feed.ID,
	)

	if err != nil {
		return fmt.Errorf("updating feed: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("feed not found: %s", feed.ID)
	}

	return nil
}

// RecordSyncOutcome persists the outcome of a sync run: last-sync timestamp,
// status, and result summary. Called exactly once per run for both success
// and error outcomes.
func (r *FeedRepository) RecordSyncOutcome(ctx context.Context, id, status string, result *models.FeedSyncResult, syncedAt time.Time) error {
	var resultJSON *string
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding sync result: %w", err)
		}
		s := string(data)
		resultJSON = &s
	}

	_, err := r.DB().ExecContext(ctx, `
		UPDATE calendar_feeds SET
			last_sync_at = ?, last_sync_status = ?, last_sync_result = ?, updated_at = ?
		WHERE id = ?
	`, syncedAt, status, resultJSON, r.Now(), id)

	if err != nil {
		return fmt.Errorf("recording sync outcome: %w", err)
	}

	return nil
}

// Delete removes a feed by ID.
func (r *FeedRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM calendar_feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting feed: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("feed not found: %s", id)
	}

	return nil
}

// DeleteByProperty removes all feeds for a property. Used when the owning
// property is deleted by the surrounding application.
func (r *FeedRepository) DeleteByProperty(ctx context.Context, propertyID string) error {
	_, err := r.DB().ExecContext(ctx, "DELETE FROM calendar_feeds WHERE property_id = ?", propertyID)
	if err != nil {
		return fmt.Errorf("deleting property feeds: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(s scanner) (*models.CalendarFeed, error) {
	feed := &models.CalendarFeed{}
	var resultJSON *string

	err := s.Scan(
		&feed.ID, &feed.PropertyID, &feed.Name, &feed.URL, &feed.Direction,
		&feed.SyncFrequencyMin, &feed.Priority, &feed.Enabled,
		&feed.LastSyncAt, &feed.LastSyncStatus, &resultJSON,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resultJSON != nil {
		var result models.FeedSyncResult
		if err := json.Unmarshal([]byte(*resultJSON), &result); err != nil {
			return nil, fmt.Errorf("decoding sync result: %w", err)
		}
		feed.LastSyncResult = &result
	}

	return feed, nil
}
