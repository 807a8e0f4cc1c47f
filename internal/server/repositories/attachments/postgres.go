package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// PostgresRepository implements attachment metadata storage over a dbx.DBTX.
// The encrypted content itself lives in object storage.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the attachment row and fills in uploaded_at.
func (r *PostgresRepository) Create(ctx context.Context, a *models.Attachment) (*models.Attachment, error) {
	var messageID sql.NullInt64
	if a.MessageID != nil {
		messageID = sql.NullInt64{Int64: *a.MessageID, Valid: true}
	}

	query := `
		INSERT INTO attachments (id, room_id, message_id, uploaded_by, original_file_name, mime_type, byte_size, storage_key, wrapped_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING uploaded_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.RoomID, messageID, a.UploadedBy, a.OriginalFileName, a.MimeType, a.ByteSize, a.StorageKey, a.WrappedKey).
		Scan(&a.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// GetByID returns an attachment row or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := `
		SELECT id, room_id, message_id, uploaded_by, original_file_name, mime_type, byte_size, storage_key, wrapped_key, uploaded_at
		FROM attachments
		WHERE id = $1
	`
	a := &models.Attachment{}
	var messageID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.RoomID, &messageID, &a.UploadedBy, &a.OriginalFileName, &a.MimeType,
		&a.ByteSize, &a.StorageKey, &a.WrappedKey, &a.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select attachment: %w", err)
	}
	if messageID.Valid {
		v := messageID.Int64
		a.MessageID = &v
	}
	return a, nil
}
