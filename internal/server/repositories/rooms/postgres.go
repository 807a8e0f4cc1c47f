package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

const selectRoom = `SELECT id, org_id, type, name, COALESCE(direct_key, ''), created_by, created_at, updated_at FROM rooms`

// PostgresRepository implements room storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores room unless it collides with an existing general room of the
// org or an existing private room for the same pair. It reports whether a row
// was created; on success room timestamps are filled in.
func (r *PostgresRepository) Insert(ctx context.Context, room *models.Room) (bool, error) {
	query := `
		INSERT INTO rooms (id, org_id, type, name, direct_key, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		room.ID, room.OrgID, string(room.Type), room.Name, room.DirectKey, room.CreatedBy).
		Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

// GetByID returns the room with the given id or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	return r.getOne(ctx, selectRoom+` WHERE id = $1`, id)
}

// GetGeneral returns the org's general room or common.ErrorNotFound.
func (r *PostgresRepository) GetGeneral(ctx context.Context, orgID string) (*models.Room, error) {
	return r.getOne(ctx, selectRoom+` WHERE org_id = $1 AND type = 'general'`, orgID)
}

// GetByDirectKey returns the private room for a participant pair or
// common.ErrorNotFound.
func (r *PostgresRepository) GetByDirectKey(ctx context.Context, orgID, directKey string) (*models.Room, error) {
	return r.getOne(ctx, selectRoom+` WHERE org_id = $1 AND direct_key = $2`, orgID, directKey)
}

// Touch bumps updated_at so room listings surface recent activity first.
func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE rooms SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Room, error) {
	room := &models.Room{}
	var roomType string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&room.ID, &room.OrgID, &roomType, &room.Name, &room.DirectKey,
		&room.CreatedBy, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	room.Type = models.RoomType(roomType)
	return room, nil
}
