package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/cache"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/repomanager"
)

const generalRoomName = "general"

// RoomService owns rooms, memberships and per-participant read state.
type RoomService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *AuditService
	cache       cache.RoomCache
	events      events.Publisher
	logger      logging.Logger
}

func NewRoomService(db *sql.DB, m repomanager.RepositoryManager, audit *AuditService,
	roomCache cache.RoomCache, publisher events.Publisher, logger logging.Logger) *RoomService {
	return &RoomService{
		db:          db,
		repomanager: m,
		audit:       audit,
		cache:       roomCache,
		events:      publisher,
		logger:      logger.With("module", "rooms"),
	}
}

func validateActor(actor models.Actor) error {
	if strings.TrimSpace(actor.UserID) == "" || strings.TrimSpace(actor.OrgID) == "" {
		return fmt.Errorf("%w: actor must have user and org", common.ErrorValidation)
	}
	return nil
}

// GetOrCreateGeneralRoom returns the org's single general room, creating it
// on first use, and makes the actor a participant. Concurrent callers all
// observe the same room.
func (s *RoomService) GetOrCreateGeneralRoom(ctx context.Context, actor models.Actor) (*models.Room, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:        newID(),
		OrgID:     actor.OrgID,
		Type:      models.RoomTypeGeneral,
		Name:      generalRoomName,
		CreatedBy: actor.UserID,
	}

	var created bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rooms := s.repomanager.Rooms(tx)

		var err error
		created, err = rooms.Insert(ctx, room)
		if err != nil {
			return err
		}
		if !created {
			room, err = rooms.GetGeneral(ctx, actor.OrgID)
			if err != nil {
				return err
			}
		}

		if _, err := s.repomanager.Participants(tx).Add(ctx, room.ID, actor.UserID); err != nil {
			return err
		}

		if created {
			return s.audit.Record(ctx, tx, auditEntry(actor, models.AuditRoomCreate, models.ResourceRoom, room.ID, true,
				map[string]any{"type": string(room.Type)}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get or create general room: %w", err)
	}

	if created {
		s.logger.Info(ctx, "general room created", "org_id", actor.OrgID, "room_id", room.ID)
		publish(ctx, s.events, s.logger, events.TypeRoomCreated, actor, room.ID, "")
	}
	return room, nil
}

// directKey identifies the unordered pair {a, b}. Each id is length-prefixed
// so ids containing the separator cannot collide.
func directKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return fmt.Sprintf("%d:%s|%d:%s", len(pair[0]), pair[0], len(pair[1]), pair[1])
}

// CreatePrivateRoom returns the private room between the actor and
// otherUserID, creating it if the pair has none yet.
func (s *RoomService) CreatePrivateRoom(ctx context.Context, actor models.Actor, otherUserID string) (*models.Room, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" || otherUserID == actor.UserID {
		return nil, fmt.Errorf("%w: private room needs exactly one other participant", common.ErrorValidation)
	}

	room := &models.Room{
		ID:        newID(),
		OrgID:     actor.OrgID,
		Type:      models.RoomTypePrivate,
		DirectKey: directKey(actor.UserID, otherUserID),
		CreatedBy: actor.UserID,
	}

	var created bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rooms := s.repomanager.Rooms(tx)

		var err error
		created, err = rooms.Insert(ctx, room)
		if err != nil {
			return err
		}
		if !created {
			room, err = rooms.GetByDirectKey(ctx, actor.OrgID, room.DirectKey)
			return err
		}

		participants := s.repomanager.Participants(tx)
		for _, userID := range []string{actor.UserID, otherUserID} {
			if _, err := participants.Add(ctx, room.ID, userID); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, auditEntry(actor, models.AuditRoomCreate, models.ResourceRoom, room.ID, true,
			map[string]any{"type": string(room.Type), "participants": 2}))
	})
	if err != nil {
		return nil, fmt.Errorf("create private room: %w", err)
	}

	if created {
		publish(ctx, s.events, s.logger, events.TypeRoomCreated, actor, room.ID, "")
	}
	return room, nil
}

// CreateGroupRoom creates a named room for the actor and participantIDs.
// Duplicate ids are ignored; the room needs at least two distinct members.
func (s *RoomService) CreateGroupRoom(ctx context.Context, actor models.Actor, name string, participantIDs []string) (*models.Room, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group room needs a name", common.ErrorValidation)
	}

	members := dedupe(append([]string{actor.UserID}, participantIDs...))
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: group room needs at least two participants", common.ErrorValidation)
	}

	room := &models.Room{
		ID:        newID(),
		OrgID:     actor.OrgID,
		Type:      models.RoomTypeGroup,
		Name:      name,
		CreatedBy: actor.UserID,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Rooms(tx).Insert(ctx, room)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("room %s already exists", room.ID)
		}

		participants := s.repomanager.Participants(tx)
		for _, userID := range members {
			if _, err := participants.Add(ctx, room.ID, userID); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, auditEntry(actor, models.AuditRoomCreate, models.ResourceRoom, room.ID, true,
			map[string]any{"type": string(room.Type), "participants": len(members)}))
	})
	if err != nil {
		return nil, fmt.Errorf("create group room: %w", err)
	}

	publish(ctx, s.events, s.logger, events.TypeRoomCreated, actor, room.ID, "")
	return room, nil
}

// CreateRoom dispatches on roomType. For private rooms participantIDs must
// name exactly one user besides the actor.
func (s *RoomService) CreateRoom(ctx context.Context, actor models.Actor, roomType models.RoomType, participantIDs []string, name string) (*models.Room, error) {
	switch roomType {
	case models.RoomTypeGeneral:
		return s.GetOrCreateGeneralRoom(ctx, actor)
	case models.RoomTypePrivate:
		var others []string
		for _, id := range dedupe(participantIDs) {
			if id != actor.UserID {
				others = append(others, id)
			}
		}
		if len(others) != 1 {
			return nil, fmt.Errorf("%w: private room needs exactly one other participant", common.ErrorValidation)
		}
		return s.CreatePrivateRoom(ctx, actor, others[0])
	case models.RoomTypeGroup:
		return s.CreateGroupRoom(ctx, actor, name, participantIDs)
	default:
		return nil, fmt.Errorf("%w: unknown room type %q", common.ErrorValidation, roomType)
	}
}

// EnsureParticipant adds userID to roomID if not already a member.
func (s *RoomService) EnsureParticipant(ctx context.Context, roomID, userID string) error {
	if _, err := s.repomanager.Participants(s.db).Add(ctx, roomID, userID); err != nil {
		return fmt.Errorf("ensure participant: %w", err)
	}
	return nil
}

// MarkRead advances userID's read marker in roomID to message upTo and
// recomputes the unread counter. upTo <= 0 means the newest message in the
// room, resolved after the participant row is locked. The lock makes
// concurrent marks and increments serialize. With a nil tx MarkRead runs its
// own transaction.
func (s *RoomService) MarkRead(ctx context.Context, tx dbx.DBTX, roomID, userID string, upTo int64) (*models.Participant, error) {
	if tx == nil {
		return dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Participant, error) {
			return s.MarkRead(ctx, tx, roomID, userID, upTo)
		})
	}

	participants := s.repomanager.Participants(tx)
	if _, err := participants.GetForUpdate(ctx, roomID, userID); err != nil {
		return nil, fmt.Errorf("lock participant: %w", err)
	}
	if upTo <= 0 {
		latest, err := s.repomanager.Messages(tx).LatestID(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("latest message: %w", err)
		}
		upTo = latest
	}
	p, err := participants.ResetUnread(ctx, roomID, userID, upTo)
	if err != nil {
		return nil, fmt.Errorf("reset unread: %w", err)
	}
	return p, nil
}

// IncrementUnreadForOthers bumps every other participant's unread counter.
func (s *RoomService) IncrementUnreadForOthers(ctx context.Context, tx dbx.DBTX, roomID, exceptUserID string) error {
	if tx == nil {
		tx = s.db
	}
	if _, err := s.repomanager.Participants(tx).IncrementUnreadForOthers(ctx, roomID, exceptUserID); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return nil
}

// GetRoom looks a room up through the room cache. Cache failures fall back
// to the database. An id that is not a UUID is reported as not found.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	if !isUUID(id) {
		return nil, fmt.Errorf("room %q: %w", id, common.ErrorNotFound)
	}

	room, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn(ctx, "room cache read failed", "room_id", id, "error", err)
	}
	if room != nil {
		return room, nil
	}

	room, err = s.repomanager.Rooms(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, room); err != nil {
		s.logger.Warn(ctx, "room cache write failed", "room_id", id, "error", err)
	}
	return room, nil
}

// ListRooms returns the actor's rooms with their unread counters.
func (s *RoomService) ListRooms(ctx context.Context, actor models.Actor) ([]*models.RoomSummary, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	rooms, err := s.repomanager.Participants(s.db).ListByUser(ctx, actor.OrgID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *RoomService) touch(ctx context.Context, tx dbx.DBTX, roomID string) error {
	if err := s.repomanager.Rooms(tx).Touch(ctx, roomID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// dedupe drops blanks and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
