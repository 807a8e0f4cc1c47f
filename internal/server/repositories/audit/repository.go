package audit

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.AuditEntry) error
}
