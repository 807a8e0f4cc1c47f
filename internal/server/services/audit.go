package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// seams for tests
var (
	newID   = uuid.NewString
	timeNow = time.Now
)

// isUUID reports whether id is a UUID in canonical form, the only form the
// room and attachment ids are issued in.
func isUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// AuditService appends entries to the audit trail.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	return &AuditService{db: db, repomanager: m, logger: logger.With("module", "audit")}
}

// Record appends e. With a non-nil tx the entry commits or rolls back with
// the surrounding business write; with a nil tx it is a standalone insert.
// A failed insert is returned to the caller: an operation whose audit entry
// was not stored has not succeeded.
func (s *AuditService) Record(ctx context.Context, tx dbx.DBTX, e *models.AuditEntry) error {
	if tx == nil {
		tx = s.db
	}
	if e.ID == "" {
		e.ID = newID()
	}

	if err := s.repomanager.Audit(tx).Create(ctx, e); err != nil {
		s.logger.Error(ctx, "audit entry not stored", "action", string(e.Action), "resource_id", e.ResourceID, "error", err)
		return fmt.Errorf("audit %s: %w", e.Action, err)
	}
	return nil
}

func auditEntry(actor models.Actor, action models.AuditAction, resourceType, resourceID string, success bool, metadata map[string]any) *models.AuditEntry {
	return &models.AuditEntry{
		OrgID:        actor.OrgID,
		ActorID:      actor.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		Success:      success,
	}
}
