package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/envelope"
	"github.com/dmitrijs2005/gophtalk/internal/keyvault"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/cache"
	"github.com/dmitrijs2005/gophtalk/internal/server/config"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/audit"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/participants"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/rooms"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger          { return n }

// memStore is an in-memory stand-in for the postgres schema. Repositories
// ignore the DBTX they are bound to; transactions are supplied by a real
// sqlite handle so dbx.WithTx runs unchanged.
type memStore struct {
	mu           sync.Mutex
	clock        time.Time
	rooms        map[string]*models.Room
	participants map[string]map[string]*models.Participant
	messages     []*models.Message
	attachments  map[string]*models.Attachment
	audit        []*models.AuditEntry

	auditErr error
}

func newMemStore() *memStore {
	return &memStore{
		clock:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		rooms:        map[string]*models.Room{},
		participants: map[string]map[string]*models.Participant{},
		attachments:  map[string]*models.Attachment{},
	}
}

// checkUUIDColumn fails the way postgres does when a non-UUID value is
// compared with a uuid column.
func checkUUIDColumn(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("db error: invalid input syntax for type uuid: %q", id)
	}
	return nil
}

// now returns a strictly increasing timestamp.
func (s *memStore) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) auditByAction(action models.AuditAction) []*models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range s.audit {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) participant(roomID, userID string) *models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participants[roomID][userID]
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

type memRooms struct{ s *memStore }

func (r memRooms) Insert(_ context.Context, room *models.Room) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.rooms {
		if existing.OrgID != room.OrgID {
			continue
		}
		if room.Type == models.RoomTypeGeneral && existing.Type == models.RoomTypeGeneral {
			return false, nil
		}
		if room.DirectKey != "" && existing.DirectKey == room.DirectKey {
			return false, nil
		}
	}
	if _, ok := r.s.rooms[room.ID]; ok {
		return false, nil
	}
	room.CreatedAt = r.s.now()
	room.UpdatedAt = room.CreatedAt
	cp := *room
	r.s.rooms[room.ID] = &cp
	return true, nil
}

func (r memRooms) find(match func(*models.Room) bool) (*models.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, room := range r.s.rooms {
		if match(room) {
			cp := *room
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memRooms) GetByID(_ context.Context, id string) (*models.Room, error) {
	if err := checkUUIDColumn(id); err != nil {
		return nil, err
	}
	return r.find(func(room *models.Room) bool { return room.ID == id })
}

func (r memRooms) GetGeneral(_ context.Context, orgID string) (*models.Room, error) {
	return r.find(func(room *models.Room) bool { return room.OrgID == orgID && room.Type == models.RoomTypeGeneral })
}

func (r memRooms) GetByDirectKey(_ context.Context, orgID, key string) (*models.Room, error) {
	return r.find(func(room *models.Room) bool { return room.OrgID == orgID && room.DirectKey == key })
}

func (r memRooms) Touch(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return common.ErrorNotFound
	}
	room.UpdatedAt = r.s.now()
	return nil
}

type memParticipants struct{ s *memStore }

func (r memParticipants) Add(_ context.Context, roomID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.participants[roomID] == nil {
		r.s.participants[roomID] = map[string]*models.Participant{}
	}
	if _, ok := r.s.participants[roomID][userID]; ok {
		return false, nil
	}
	r.s.participants[roomID][userID] = &models.Participant{RoomID: roomID, UserID: userID, JoinedAt: r.s.now()}
	return true, nil
}

func (r memParticipants) Get(_ context.Context, roomID, userID string) (*models.Participant, error) {
	if p := r.s.participant(roomID, userID); p != nil {
		return p, nil
	}
	return nil, common.ErrorNotFound
}

func (r memParticipants) GetForUpdate(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	return r.Get(ctx, roomID, userID)
}

func (r memParticipants) ResetUnread(_ context.Context, roomID, userID string, upTo int64) (*models.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.participants[roomID][userID]
	if p == nil {
		return nil, common.ErrorNotFound
	}
	p.LastReadMessageID = max(p.LastReadMessageID, upTo)
	p.LastReadAt = r.s.now()
	var n int64
	for _, m := range r.s.messages {
		if m.RoomID == roomID && m.SenderID != userID && m.DeletedAt == nil && m.ID > p.LastReadMessageID {
			n++
		}
	}
	p.UnreadCount = n
	cp := *p
	return &cp, nil
}

func (r memParticipants) IncrementUnreadForOthers(_ context.Context, roomID, exceptUserID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for userID, p := range r.s.participants[roomID] {
		if userID != exceptUserID {
			p.UnreadCount++
			n++
		}
	}
	return n, nil
}

func (r memParticipants) ListByUser(_ context.Context, orgID, userID string) ([]*models.RoomSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RoomSummary
	for roomID, members := range r.s.participants {
		p, ok := members[userID]
		room := r.s.rooms[roomID]
		if !ok || room == nil || room.OrgID != orgID {
			continue
		}
		out = append(out, &models.RoomSummary{Room: *room, UnreadCount: p.UnreadCount, LastReadAt: p.LastReadAt, LastReadMessageID: p.LastReadMessageID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.UpdatedAt.After(out[j].Room.UpdatedAt) })
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(_ context.Context, m *models.Message) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *m
	cp.ID = int64(len(r.s.messages) + 1)
	cp.CreatedAt = r.s.now()
	r.s.messages = append(r.s.messages, &cp)
	out := cp
	return &out, nil
}

func (r memMessages) GetByID(_ context.Context, id int64) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memMessages) ListBefore(_ context.Context, roomID string, before int64, limit int) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Message
	for i := len(r.s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.s.messages[i]
		if m.RoomID != roomID || m.DeletedAt != nil || (before > 0 && m.ID >= before) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r memMessages) LatestID(_ context.Context, roomID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var id int64
	for _, m := range r.s.messages {
		if m.RoomID == roomID && m.DeletedAt == nil && m.ID > id {
			id = m.ID
		}
	}
	return id, nil
}

type memAttachments struct{ s *memStore }

func (r memAttachments) Create(_ context.Context, a *models.Attachment) (*models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *a
	cp.UploadedAt = r.s.now()
	r.s.attachments[a.ID] = &cp
	out := cp
	return &out, nil
}

func (r memAttachments) GetByID(_ context.Context, id string) (*models.Attachment, error) {
	if err := checkUUIDColumn(id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attachments[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Create(_ context.Context, e *models.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditErr != nil {
		return r.s.auditErr
	}
	cp := *e
	cp.CreatedAt = r.s.now()
	r.s.audit = append(r.s.audit, &cp)
	return nil
}

type memRepoManager struct{ s *memStore }

func (m memRepoManager) RunMigrations(context.Context, *sql.DB) error  { return nil }
func (m memRepoManager) Rooms(dbx.DBTX) rooms.Repository               { return memRooms{m.s} }
func (m memRepoManager) Participants(dbx.DBTX) participants.Repository { return memParticipants{m.s} }
func (m memRepoManager) Messages(dbx.DBTX) messages.Repository         { return memMessages{m.s} }
func (m memRepoManager) Attachments(dbx.DBTX) attachments.Repository   { return memAttachments{m.s} }
func (m memRepoManager) Audit(dbx.DBTX) audit.Repository               { return memAudit{m.s} }

type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errBoom = errors.New("boom")

// harness wires every service over one memStore.
type harness struct {
	store       *memStore
	blobs       *memBlobs
	publisher   *recordingPublisher
	config      *config.Config
	cipher      *envelope.Cipher
	audit       *AuditService
	rooms       *RoomService
	guard       *AccessGuard
	messages    *MessageService
	attachments *AttachmentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	vault, err := keyvault.NewFromHex(cryptox.AlgorithmAESGCM, testMasterKey)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	h := &harness{
		store:     newMemStore(),
		blobs:     newMemBlobs(),
		publisher: &recordingPublisher{},
		config:    cfg,
		cipher:    envelope.NewCipher(vault),
	}
	rm := memRepoManager{h.store}
	log := nopLogger{}

	h.audit = NewAuditService(db, rm, log)
	h.rooms = NewRoomService(db, rm, h.audit, cache.NopRoomCache{}, h.publisher, log)
	h.guard = NewAccessGuard(h.rooms, h.audit, log)
	h.messages = NewMessageService(db, rm, cfg, h.cipher, h.guard, h.rooms, h.audit, h.publisher, log)
	h.attachments = NewAttachmentService(db, rm, cfg, h.cipher, h.blobs, h.guard, h.audit, h.publisher, log)
	return h
}
