package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// Permission is the kind of access requested on a room.
type Permission string

const (
	PermissionRead Permission = "read"
	PermissionPost Permission = "post"
)

// AccessGuard decides whether an actor may touch a room. Every denial is
// written to the audit trail before it is returned.
type AccessGuard struct {
	rooms  *RoomService
	audit  *AuditService
	logger logging.Logger
}

func NewAccessGuard(rooms *RoomService, audit *AuditService, logger logging.Logger) *AccessGuard {
	return &AccessGuard{rooms: rooms, audit: audit, logger: logger.With("module", "access")}
}

// Authorize returns the room and the actor's membership if the actor belongs
// to the room's organization and is a participant. An unknown room is
// reported as access denied so room ids cannot be enumerated.
func (g *AccessGuard) Authorize(ctx context.Context, actor models.Actor, roomID string, perm Permission) (*models.Room, *models.Participant, error) {
	if err := validateActor(actor); err != nil {
		return nil, nil, err
	}

	room, err := g.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, g.deny(ctx, actor, roomID, perm, "room not found")
		}
		return nil, nil, fmt.Errorf("authorize: %w", err)
	}

	if room.OrgID != actor.OrgID {
		return nil, nil, g.deny(ctx, actor, roomID, perm, "organization mismatch")
	}

	p, err := g.rooms.repomanager.Participants(g.rooms.db).Get(ctx, roomID, actor.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, g.deny(ctx, actor, roomID, perm, "not a participant")
		}
		return nil, nil, fmt.Errorf("authorize: %w", err)
	}

	return room, p, nil
}

func (g *AccessGuard) deny(ctx context.Context, actor models.Actor, roomID string, perm Permission, reason string) error {
	g.logger.Warn(ctx, "access denied", "user_id", actor.UserID, "room_id", roomID, "permission", string(perm), "reason", reason)

	e := auditEntry(actor, models.AuditAccessDenied, models.ResourceRoom, roomID, false,
		map[string]any{"permission": string(perm), "reason": reason})
	if err := g.audit.Record(ctx, nil, e); err != nil {
		g.logger.Error(ctx, "denial not audited", "room_id", roomID, "error", err)
	}

	return fmt.Errorf("%w: room %s", common.ErrorAccessDenied, roomID)
}
