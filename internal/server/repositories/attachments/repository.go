package attachments

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error)
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
}
