package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// PostgresRepository implements message storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts m and fills in the server-assigned id and created_at.
func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	mentions, err := encodeMentions(m.MentionedUserIDs)
	if err != nil {
		return nil, err
	}

	var replyTo sql.NullInt64
	if m.ReplyToMessageID != nil {
		replyTo = sql.NullInt64{Int64: *m.ReplyToMessageID, Valid: true}
	}

	query := `
		INSERT INTO messages (room_id, sender_id, content, mentioned_user_ids, reply_to_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query, m.RoomID, m.SenderID, m.Content, mentions, replyTo).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// GetByID returns a message, including soft-deleted ones, or
// common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, content, mentioned_user_ids, reply_to_message_id, created_at, deleted_at
		FROM messages
		WHERE id = $1
	`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListBefore returns up to limit live messages of roomID with id < before,
// newest first. before <= 0 means "from the newest message".
func (r *PostgresRepository) ListBefore(ctx context.Context, roomID string, before int64, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, room_id, sender_id, content, mentioned_user_ids, reply_to_message_id, created_at, deleted_at
		FROM messages
		WHERE room_id = $1 AND deleted_at IS NULL AND ($2 <= 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestID returns the highest live message id of roomID, or 0 for an empty
// room.
func (r *PostgresRepository) LatestID(ctx context.Context, roomID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id), 0) FROM messages WHERE room_id = $1 AND deleted_at IS NULL`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, roomID).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*models.Message, error) {
	var (
		m        models.Message
		mentions string
		replyTo  sql.NullInt64
		deleted  sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &mentions, &replyTo, &m.CreatedAt, &deleted); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		v := replyTo.Int64
		m.ReplyToMessageID = &v
	}
	if deleted.Valid {
		v := deleted.Time
		m.DeletedAt = &v
	}
	if mentions != "" {
		if err := json.Unmarshal([]byte(mentions), &m.MentionedUserIDs); err != nil {
			return nil, fmt.Errorf("decode mentions of message %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

func encodeMentions(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode mentions: %w", err)
	}
	return string(b), nil
}
