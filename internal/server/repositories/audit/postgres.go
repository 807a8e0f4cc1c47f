package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// PostgresRepository appends audit entries over a dbx.DBTX. Entries are
// never updated or deleted.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends e and fills in created_at.
func (r *PostgresRepository) Create(ctx context.Context, e *models.AuditEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, org_id, actor_id, action, resource_type, resource_id, metadata, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		e.ID, e.OrgID, e.ActorID, string(e.Action), e.ResourceType, e.ResourceID, string(b), e.Success).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
