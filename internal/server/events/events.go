// Package events publishes room activity for the real-time delivery layer.
// Events carry identifiers only, never message or attachment content.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeMessageCreated     = "message.created"
	TypeAttachmentUploaded = "attachment.uploaded"
	TypeRoomRead           = "room.read"
	TypeRoomCreated        = "room.created"
)

// Event is a notification that something happened in a room.
type Event struct {
	Type       string    `json:"type"`
	OrgID      string    `json:"org_id"`
	RoomID     string    `json:"room_id"`
	ActorID    string    `json:"actor_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
