package rooms

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, room *models.Room) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Room, error)
	GetGeneral(ctx context.Context, orgID string) (*models.Room, error)
	GetByDirectKey(ctx context.Context, orgID, directKey string) (*models.Room, error)
	Touch(ctx context.Context, id string) error
}
