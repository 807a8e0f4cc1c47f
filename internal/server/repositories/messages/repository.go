package messages

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	ListBefore(ctx context.Context, roomID string, before int64, limit int) ([]*models.Message, error)
	LatestID(ctx context.Context, roomID string) (int64, error)
}
