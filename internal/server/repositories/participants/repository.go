package participants

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

type Repository interface {
	Add(ctx context.Context, roomID, userID string) (bool, error)
	Get(ctx context.Context, roomID, userID string) (*models.Participant, error)
	GetForUpdate(ctx context.Context, roomID, userID string) (*models.Participant, error)
	ResetUnread(ctx context.Context, roomID, userID string, upTo int64) (*models.Participant, error)
	IncrementUnreadForOthers(ctx context.Context, roomID, exceptUserID string) (int64, error)
	ListByUser(ctx context.Context, orgID, userID string) ([]*models.RoomSummary, error)
}
