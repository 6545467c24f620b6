package websocket

import (
	"log"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastFeedSync sends the outcome of a feed sync run to connected
// operator clients.
func (b *EventBroadcaster) BroadcastFeedSync(result models.SyncRunResult) {
	if result.Error != nil {
		msg := NewMessage(TypeFeedSyncError, FeedSyncErrorPayload{
			FeedID:   result.FeedID,
			FeedName: result.FeedName,
			Error:    "sync_error",
			Message:  result.Error.Error(),
		})
		b.broadcast(msg)
		return
	}

	payload := FeedSyncPayload{
		FeedID:          result.FeedID,
		FeedName:        result.FeedName,
		PropertyID:      result.PropertyID,
		Status:          models.SyncStatusSuccess,
		EventsProcessed: result.EventsProcessed,
		BlocksCreated:   result.BlocksCreated,
		BlocksUpdated:   result.BlocksUpdated,
		BlocksRemoved:   result.BlocksRemoved,
		Conflicts:       result.Conflicts,
		Warnings:        result.Warnings,
	}

	b.broadcast(NewMessage(TypeFeedSyncCompleted, payload))
}

// BroadcastNotification sends a free-form operator notification.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

// broadcast serializes and sends a message through the hub.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Failed to serialize WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
