package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/envelope"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/config"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/repomanager"
)

// MessageService is the message ledger: it seals messages on the way in and
// opens them for participants on the way out.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	cipher      *envelope.Cipher
	guard       *AccessGuard
	rooms       *RoomService
	audit       *AuditService
	events      events.Publisher
	logger      logging.Logger
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, cipher *envelope.Cipher,
	guard *AccessGuard, rooms *RoomService, audit *AuditService, publisher events.Publisher, logger logging.Logger) *MessageService {
	return &MessageService{
		db:          db,
		repomanager: m,
		config:      cfg,
		cipher:      cipher,
		guard:       guard,
		rooms:       rooms,
		audit:       audit,
		events:      publisher,
		logger:      logger.With("module", "messages"),
	}
}

// Post seals text and appends it to the room. Other participants' unread
// counters move in the same transaction as the insert and its audit entry.
func (s *MessageService) Post(ctx context.Context, actor models.Actor, roomID, text string, mentions []string, replyTo *int64) (*models.MessageView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is empty", common.ErrorValidation)
	}
	if n := utf8.RuneCountInString(text); s.config.MaxMessageLength > 0 && n > s.config.MaxMessageLength {
		return nil, fmt.Errorf("%w: message is %d characters, limit is %d", common.ErrorValidation, n, s.config.MaxMessageLength)
	}

	if _, _, err := s.guard.Authorize(ctx, actor, roomID, PermissionPost); err != nil {
		return nil, err
	}

	if replyTo != nil {
		parent, err := s.repomanager.Messages(s.db).GetByID(ctx, *replyTo)
		if err != nil {
			return nil, fmt.Errorf("reply target: %w", err)
		}
		if parent.RoomID != roomID || parent.DeletedAt != nil {
			return nil, fmt.Errorf("reply target %d: %w", *replyTo, common.ErrorNotFound)
		}
	}

	env, err := s.cipher.SealText(text)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}

	msg := &models.Message{
		RoomID:           roomID,
		SenderID:         actor.UserID,
		Content:          env.String(),
		MentionedUserIDs: dedupe(mentions),
		ReplyToMessageID: replyTo,
	}

	msg, err = dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Message, error) {
		created, err := s.repomanager.Messages(tx).Create(ctx, msg)
		if err != nil {
			return nil, err
		}

		if err := s.rooms.IncrementUnreadForOthers(ctx, tx, roomID, actor.UserID); err != nil {
			return nil, err
		}
		if err := s.rooms.touch(ctx, tx, roomID); err != nil {
			return nil, err
		}

		err = s.audit.Record(ctx, tx, auditEntry(actor, models.AuditSend, models.ResourceMessage, strconv.FormatInt(created.ID, 10), true,
			map[string]any{"room_id": roomID, "mentions": len(created.MentionedUserIDs)}))
		return created, err
	})
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	s.logger.Debug(ctx, "message posted", "room_id", roomID, "message_id", msg.ID)

	publish(ctx, s.events, s.logger, events.TypeMessageCreated, actor, roomID, strconv.FormatInt(msg.ID, 10))

	return &models.MessageView{
		ID:               msg.ID,
		RoomID:           msg.RoomID,
		SenderID:         msg.SenderID,
		Text:             text,
		MentionedUserIDs: msg.MentionedUserIDs,
		ReplyToMessageID: msg.ReplyToMessageID,
		CreatedAt:        msg.CreatedAt,
	}, nil
}

func (s *MessageService) pageSize(limit int) int {
	if limit <= 0 {
		limit = s.config.DefaultPageSize
	}
	if s.config.MaxPageSize > 0 && limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}
	return limit
}

// List returns up to limit live messages older than the before cursor
// (newest page when before <= 0), oldest first. A message that can not be
// opened is returned with a placeholder body and audited as a decrypt
// failure; it never fails the page. Listing marks the room read up to the
// newest message returned.
func (s *MessageService) List(ctx context.Context, actor models.Actor, roomID string, limit int, before int64) ([]*models.MessageView, error) {
	if _, _, err := s.guard.Authorize(ctx, actor, roomID, PermissionRead); err != nil {
		return nil, err
	}

	stored, err := s.repomanager.Messages(s.db).ListBefore(ctx, roomID, before, s.pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	views := make([]*models.MessageView, len(stored))
	var failures []*models.AuditEntry

	// stored is newest first; views are oldest first
	for i, m := range stored {
		v := &models.MessageView{
			ID:               m.ID,
			RoomID:           m.RoomID,
			SenderID:         m.SenderID,
			MentionedUserIDs: m.MentionedUserIDs,
			ReplyToMessageID: m.ReplyToMessageID,
			CreatedAt:        m.CreatedAt,
		}

		text, err := s.open(m.Content)
		if err != nil {
			if !common.IsIntegrityError(err) {
				return nil, fmt.Errorf("open message %d: %w", m.ID, err)
			}
			s.logger.Warn(ctx, "message not decryptable", "message_id", m.ID, "room_id", roomID, "error", err)
			v.Text = common.UndecryptablePlaceholder
			v.Undecryptable = true
			failures = append(failures, auditEntry(actor, models.AuditDecryptFailure, models.ResourceMessage,
				strconv.FormatInt(m.ID, 10), false, map[string]any{"room_id": roomID, "reason": integrityReason(err)}))
		} else {
			v.Text = text
		}

		views[len(stored)-1-i] = v
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if len(stored) > 0 {
			if _, err := s.rooms.MarkRead(ctx, tx, roomID, actor.UserID, stored[0].ID); err != nil {
				return err
			}
		}

		for _, e := range failures {
			if err := s.audit.Record(ctx, tx, e); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, auditEntry(actor, models.AuditRead, models.ResourceRoom, roomID, true,
			map[string]any{"count": len(views), "undecryptable": len(failures)}))
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return views, nil
}

// MarkRoomRead moves the actor's read marker to the newest message in the
// room and clears the unread counter.
func (s *MessageService) MarkRoomRead(ctx context.Context, actor models.Actor, roomID string) (*models.Participant, error) {
	if _, _, err := s.guard.Authorize(ctx, actor, roomID, PermissionRead); err != nil {
		return nil, err
	}

	p, err := s.rooms.MarkRead(ctx, nil, roomID, actor.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("mark room read: %w", err)
	}

	publish(ctx, s.events, s.logger, events.TypeRoomRead, actor, roomID, "")
	return p, nil
}

func (s *MessageService) open(content string) (string, error) {
	env, err := envelope.ParseEnvelope(content)
	if err != nil {
		return "", err
	}
	return s.cipher.OpenText(env)
}

// integrityReason names the failure class without echoing record material.
func integrityReason(err error) string {
	switch {
	case errors.Is(err, common.ErrKeyFormat):
		return "key_format"
	case errors.Is(err, common.ErrInvalidFormat):
		return "invalid_format"
	default:
		return "authentication"
	}
}
