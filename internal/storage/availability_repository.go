package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// AvailabilityRepository provides data access for the canonical per-property
// availability timeline.
type AvailabilityRepository struct {
	BaseRepository
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *DB) *AvailabilityRepository {
	return &AvailabilityRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const blockColumns = `id, property_id, start_at, end_at, status, source,
       external_event_id, feed_id, feed_priority, booking_id, summary, created_at, updated_at`

// Create inserts a new availability block.
func (r *AvailabilityRepository) Create(ctx context.Context, block *models.AvailabilityBlock) error {
	block.ID = GenerateID()
	block.CreatedAt = r.Now()
	block.UpdatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO availability_blocks (
			id, property_id, start_at, end_at, status, source,
			external_event_id, feed_id, feed_priority, booking_id, summary, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		block.ID, block.PropertyID, block.StartAt.UTC(), block.EndAt.UTC(),
		block.Status, block.Source, block.ExternalEventID, block.FeedID,
		block.FeedPriority, block.BookingID, block.Summary, block.CreatedAt, block.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("inserting availability block: %w", err)
	}

	return nil
}

// GetByID retrieves a block by its ID.
func (r *AvailabilityRepository) GetByID(ctx context.Context, id string) (*models.AvailabilityBlock, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks WHERE id = ?
	`, id)

	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying availability block: %w", err)
	}

	return block, nil
}

// GetByExternalID retrieves the block ingested from a specific feed event.
func (r *AvailabilityRepository) GetByExternalID(ctx context.Context, feedID, externalID string) (*models.AvailabilityBlock, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks WHERE feed_id = ? AND external_event_id = ?
	`, feedID, externalID)

	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying block by external ID: %w", err)
	}

	return block, nil
}

// GetByBookingID retrieves the block mirroring a first-party booking.
func (r *AvailabilityRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.AvailabilityBlock, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks WHERE booking_id = ?
	`, bookingID)

	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying block by booking ID: %w", err)
	}

	return block, nil
}

// ListByProperty retrieves all blocks for a property ordered by start time.
func (r *AvailabilityRepository) ListByProperty(ctx context.Context, propertyID string) ([]models.AvailabilityBlock, error) {
	return r.list(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks
		WHERE property_id = ?
		ORDER BY start_at
	`, propertyID)
}

// ListByFeed retrieves all blocks owned by a feed.
func (r *AvailabilityRepository) ListByFeed(ctx context.Context, feedID string) ([]models.AvailabilityBlock, error) {
	return r.list(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks
		WHERE feed_id = ?
		ORDER BY start_at
	`, feedID)
}

// FindOverlapping returns all blocks whose span intersects [start, end).
// Half-open semantics: a block ending exactly at start is not an overlap.
func (r *AvailabilityRepository) FindOverlapping(ctx context.Context, propertyID string, start, end time.Time) ([]models.AvailabilityBlock, error) {
	return r.list(ctx, `
		SELECT `+blockColumns+`
		FROM availability_blocks
		WHERE property_id = ? AND start_at < ? AND ? < end_at
		ORDER BY start_at
	`, propertyID, end.UTC(), start.UTC())
}

// HasConflict reports whether any block marks [start, end) as taken.
// This is the availability check the booking layer must pass before a
// booking may be persisted.
func (r *AvailabilityRepository) HasConflict(ctx context.Context, propertyID string, start, end time.Time) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM availability_blocks
		WHERE property_id = ? AND start_at < ? AND ? < end_at AND status != ?
	`, propertyID, end.UTC(), start.UTC(), models.BlockStatusAvailable).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("checking availability conflict: %w", err)
	}

	return count > 0, nil
}

// UpsertByExternalID writes a feed-sourced block keyed by (feed ID, external
// event ID). Re-ingesting the same external event updates the existing row,
// preserving its ID and creation timestamp. Returns true when a new block
// was inserted.
func (r *AvailabilityRepository) UpsertByExternalID(ctx context.Context, block *models.AvailabilityBlock) (bool, error) {
	if block.FeedID == nil || block.ExternalEventID == nil {
		return false, fmt.Errorf("upsert requires feed ID and external event ID")
	}

	existing, err := r.GetByExternalID(ctx, *block.FeedID, *block.ExternalEventID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		if err := r.Create(ctx, block); err != nil {
			return false, err
		}
		return true, nil
	}

	block.ID = existing.ID
	block.CreatedAt = existing.CreatedAt
	block.UpdatedAt = r.Now()

	_, err = r.DB().ExecContext(ctx, `
		UPDATE availability_blocks SET
			start_at = ?, end_at = ?, status = ?, feed_priority = ?, summary = ?, updated_at = ?
		WHERE id = ?
	`,
		block.StartAt.UTC(), block.EndAt.UTC(), block.Status,
		block.FeedPriority, block.Summary, block.UpdatedAt, block.ID,
	)

	if err != nil {
		return false, fmt.Errorf("updating availability block: %w", err)
	}

	return false, nil
}

// UpdateStatus changes a block's status in place.
func (r *AvailabilityRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE availability_blocks SET status = ?, updated_at = ? WHERE id = ?
	`, status, r.Now(), id)

	if err != nil {
		return fmt.Errorf("updating block status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("availability block not found: %s", id)
	}

	return nil
}

// UpdateBookingBlock rewrites a booking block's range and status in place.
// Only booking-source rows match, so a feed block can never be rewritten
// through this path.
func (r *AvailabilityRepository) UpdateBookingBlock(ctx context.Context, block *models.AvailabilityBlock) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE availability_blocks SET start_at = ?, end_at = ?, status = ?, updated_at = ?
		WHERE id = ? AND source = ?
	`, block.StartAt.UTC(), block.EndAt.UTC(), block.Status, r.Now(), block.ID, models.SourceBooking)

	if err != nil {
		return fmt.Errorf("updating booking block: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("booking block not found: %s", block.ID)
	}

	return nil
}

// DeleteByIDs removes the given blocks. Used when an accepted candidate
// overrides outranked overlapping blocks.
func (r *AvailabilityRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := r.DB().ExecContext(ctx,
		"DELETE FROM availability_blocks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("deleting availability blocks: %w", err)
	}

	return nil
}

// Delete removes a single block by ID.
func (r *AvailabilityRepository) Delete(ctx context.Context, id string) error {
	_, err := r.DB().ExecContext(ctx, "DELETE FROM availability_blocks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting availability block: %w", err)
	}
	return nil
}

// DeleteMissingExternalIDs removes blocks owned by the given feed whose
// external event ID is absent from the latest fetch. Only the feed's own
// rows are touched, so one feed can never wipe another feed's data.
// Returns the number of blocks removed.
func (r *AvailabilityRepository) DeleteMissingExternalIDs(ctx context.Context, feedID string, present map[string]bool) (int, error) {
	blocks, err := r.ListByFeed(ctx, feedID)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, b := range blocks {
		if b.ExternalEventID != nil && !present[*b.ExternalEventID] {
			stale = append(stale, b.ID)
		}
	}

	if err := r.DeleteByIDs(ctx, stale); err != nil {
		return 0, err
	}

	return len(stale), nil
}

// ReplaceBookingBlocks atomically replaces a property's booking-derived
// blocks with the given set. Feed-owned blocks are untouched; this is the
// full-recompute path of the booking bridge only.
func (r *AvailabilityRepository) ReplaceBookingBlocks(ctx context.Context, propertyID string, blocks []models.AvailabilityBlock) error {
	return r.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM availability_blocks WHERE property_id = ? AND source = ?",
			propertyID, models.SourceBooking); err != nil {
			return fmt.Errorf("clearing booking blocks: %w", err)
		}

		now := r.Now()
		for i := range blocks {
			b := &blocks[i]
			if b.ID == "" {
				b.ID = GenerateID()
			}
			b.PropertyID = propertyID
			b.CreatedAt = now
			b.UpdatedAt = now

			_, err := tx.ExecContext(ctx, `
				INSERT INTO availability_blocks (
					id, property_id, start_at, end_at, status, source,
					external_event_id, feed_id, feed_priority, booking_id, summary, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				b.ID, b.PropertyID, b.StartAt.UTC(), b.EndAt.UTC(), b.Status, b.Source,
				b.ExternalEventID, b.FeedID, b.FeedPriority, b.BookingID, b.Summary,
				b.CreatedAt, b.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("inserting replacement block: %w", err)
			}
		}

		return nil
	})
}

func (r *AvailabilityRepository) list(ctx context.Context, query string, args ...any) ([]models.AvailabilityBlock, error) {
	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying availability blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning availability block: %w", err)
		}
		blocks = append(blocks, *block)
	}

	return blocks, rows.Err()
}

func scanBlock(s scanner) (*models.AvailabilityBlock, error) {
	block := &models.AvailabilityBlock{}

	err := s.Scan(
		&block.ID, &block.PropertyID, &block.StartAt, &block.EndAt,
		&block.Status, &block.Source, &block.ExternalEventID, &block.FeedID,
		&block.FeedPriority, &block.BookingID, &block.Summary,
		&block.CreatedAt, &block.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	block.StartAt = block.StartAt.UTC()
	block.EndAt = block.EndAt.UTC()

	return block, nil
}
