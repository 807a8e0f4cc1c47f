package participants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

const selectParticipant = `SELECT room_id, user_id, joined_at, last_read_at, last_read_message_id, unread_count FROM room_participants WHERE room_id = $1 AND user_id = $2`

const resetUnreadQuery = `
	UPDATE room_participants p
	SET last_read_message_id = GREATEST(p.last_read_message_id, $3),
	    last_read_at = now(),
	    unread_count = (
	        SELECT COUNT(*) FROM messages m
	        WHERE m.room_id = p.room_id
	          AND m.sender_id <> p.user_id
	          AND m.deleted_at IS NULL
	          AND m.id > GREATEST(p.last_read_message_id, $3)
	    )
	WHERE p.room_id = $1 AND p.user_id = $2
	RETURNING p.room_id, p.user_id, p.joined_at, p.last_read_at, p.last_read_message_id, p.unread_count
`

// PostgresRepository implements participant storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add makes userID a participant of roomID. It is a no-op for an existing
// member and reports whether a row was inserted.
func (r *PostgresRepository) Add(ctx context.Context, roomID, userID string) (bool, error) {
	query := `
		INSERT INTO room_participants (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// Get returns the membership row or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	return r.getOne(ctx, selectParticipant, roomID, userID)
}

// GetForUpdate is Get with a row lock; it must run inside a transaction.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	return r.getOne(ctx, selectParticipant+` FOR UPDATE`, roomID, userID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, roomID, userID string) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, query, roomID, userID).
		Scan(&p.RoomID, &p.UserID, &p.JoinedAt, &p.LastReadAt, &p.LastReadMessageID, &p.UnreadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// ResetUnread moves the read marker forward to message upTo (never backwards)
// and recomputes the unread counter as the number of live messages from other
// senders with an id above the marker. created_at does not follow id order,
// so it is never used for read state.
func (r *PostgresRepository) ResetUnread(ctx context.Context, roomID, userID string, upTo int64) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, resetUnreadQuery, roomID, userID, upTo).
		Scan(&p.RoomID, &p.UserID, &p.JoinedAt, &p.LastReadAt, &p.LastReadMessageID, &p.UnreadCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

// IncrementUnreadForOthers bumps the unread counter of every participant of
// roomID except exceptUserID in one statement and returns how many rows
// changed.
func (r *PostgresRepository) IncrementUnreadForOthers(ctx context.Context, roomID, exceptUserID string) (int64, error) {
	query := `UPDATE room_participants SET unread_count = unread_count + 1 WHERE room_id = $1 AND user_id <> $2`
	res, err := r.db.ExecContext(ctx, query, roomID, exceptUserID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// ListByUser returns every room of orgID that userID participates in, most
// recently updated first.
func (r *PostgresRepository) ListByUser(ctx context.Context, orgID, userID string) ([]*models.RoomSummary, error) {
	query := `
		SELECT r.id, r.org_id, r.type, r.name, COALESCE(r.direct_key, ''), r.created_by, r.created_at, r.updated_at,
		       p.unread_count, p.last_read_at, p.last_read_message_id
		FROM room_participants p
		JOIN rooms r ON r.id = p.room_id
		WHERE p.user_id = $1 AND r.org_id = $2
		ORDER BY r.updated_at DESC, r.id
	`
	rows, err := r.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to select rooms: %w", err)
	}
	defer rows.Close()

	var result []*models.RoomSummary
	for rows.Next() {
		var item models.RoomSummary
		var roomType string
		if err := rows.Scan(
			&item.Room.ID, &item.Room.OrgID, &roomType, &item.Room.Name, &item.Room.DirectKey,
			&item.Room.CreatedBy, &item.Room.CreatedAt, &item.Room.UpdatedAt,
			&item.UnreadCount, &item.LastReadAt, &item.LastReadMessageID); err != nil {
			return nil, err
		}
		item.Room.Type = models.RoomType(roomType)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
