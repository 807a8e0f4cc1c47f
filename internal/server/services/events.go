package services

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// publish sends a room event after the owning transaction has committed.
// Delivery is best effort: the stored state is authoritative, so a failed
// publish is logged and not returned.
func publish(ctx context.Context, p events.Publisher, logger logging.Logger, eventType string, actor models.Actor, roomID, resourceID string) {
	err := p.Publish(ctx, events.Event{
		Type:       eventType,
		OrgID:      actor.OrgID,
		RoomID:     roomID,
		ActorID:    actor.UserID,
		ResourceID: resourceID,
		OccurredAt: timeNow().UTC(),
	})
	if err != nil {
		logger.Warn(ctx, "event not published", "type", eventType, "room_id", roomID, "error", err)
	}
}
