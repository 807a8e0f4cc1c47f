package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/dbx"
	"github.com/dmitrijs2005/gophtalk/internal/envelope"
	"github.com/dmitrijs2005/gophtalk/internal/logging"
	"github.com/dmitrijs2005/gophtalk/internal/server/blobstore"
	"github.com/dmitrijs2005/gophtalk/internal/server/config"
	"github.com/dmitrijs2005/gophtalk/internal/server/events"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"github.com/dmitrijs2005/gophtalk/internal/server/repositories/repomanager"
)

// BlobStore holds sealed attachment payloads.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentService encrypts files into the blob store and decrypts them
// for room participants.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	cipher      *envelope.Cipher
	blobs       BlobStore
	guard       *AccessGuard
	audit       *AuditService
	events      events.Publisher
	logger      logging.Logger
}

func NewAttachmentService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, cipher *envelope.Cipher,
	blobs BlobStore, guard *AccessGuard, audit *AuditService, publisher events.Publisher, logger logging.Logger) *AttachmentService {
	return &AttachmentService{
		db:          db,
		repomanager: m,
		config:      cfg,
		cipher:      cipher,
		blobs:       blobs,
		guard:       guard,
		audit:       audit,
		events:      publisher,
		logger:      logger.With("module", "attachments"),
	}
}

// normalizeMimeType lowercases mimeType and drops its parameters.
func normalizeMimeType(mimeType string) (string, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: invalid mime type %q", common.ErrorValidation, mimeType)
	}
	return strings.ToLower(mt), nil
}

func (s *AttachmentService) mimeAllowed(mt string) bool {
	for _, allowed := range s.config.AllowedMimeTypes {
		if strings.EqualFold(strings.TrimSpace(allowed), mt) {
			return true
		}
	}
	return false
}

func (s *AttachmentService) validate(data []byte, fileName, mimeType string) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: attachment is empty", common.ErrorValidation)
	}
	if int64(len(data)) > s.config.MaxAttachmentSize {
		return "", "", fmt.Errorf("%w: attachment is %d bytes, limit is %d", common.ErrorValidation, len(data), s.config.MaxAttachmentSize)
	}

	mt, err := normalizeMimeType(mimeType)
	if err != nil {
		return "", "", err
	}
	if !s.mimeAllowed(mt) {
		return "", "", fmt.Errorf("%w: mime type %s is not allowed", common.ErrorValidation, mt)
	}

	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", "", fmt.Errorf("%w: file name is required", common.ErrorValidation)
	}

	return name, mt, nil
}

// Upload validates and seals data, stores the sealed payload and records
// the attachment. The row and its upload audit entry commit together; if
// that fails the stored payload is removed again.
func (s *AttachmentService) Upload(ctx context.Context, actor models.Actor, roomID string, messageID *int64, fileName, mimeType string, data []byte) (*models.AttachmentMeta, error) {
	if _, _, err := s.guard.Authorize(ctx, actor, roomID, PermissionPost); err != nil {
		return nil, err
	}

	name, mt, err := s.validate(data, fileName, mimeType)
	if err != nil {
		return nil, err
	}

	if messageID != nil {
		m, err := s.repomanager.Messages(s.db).GetByID(ctx, *messageID)
		if err != nil {
			return nil, fmt.Errorf("attach to message: %w", err)
		}
		if m.RoomID != roomID || m.DeletedAt != nil {
			return nil, fmt.Errorf("attach to message %d: %w", *messageID, common.ErrorNotFound)
		}
	}

	env, err := s.cipher.SealBlob(data)
	if err != nil {
		return nil, fmt.Errorf("seal attachment: %w", err)
	}

	a := &models.Attachment{
		ID:               newID(),
		RoomID:           roomID,
		MessageID:        messageID,
		UploadedBy:       actor.UserID,
		OriginalFileName: name,
		MimeType:         mt,
		ByteSize:         int64(len(data)),
		WrappedKey:       env.WrappedKey.String(),
	}
	a.StorageKey = blobstore.StorageKey(roomID, a.ID, timeNow().UTC())

	if err := s.blobs.Put(ctx, a.StorageKey, []byte(env.Payload.String())); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	stored, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Attachment, error) {
		created, err := s.repomanager.Attachments(tx).Create(ctx, a)
		if err != nil {
			return nil, err
		}
		err = s.audit.Record(ctx, tx, auditEntry(actor, models.AuditUpload, models.ResourceAttachment, created.ID, true,
			map[string]any{"room_id": roomID, "size": created.ByteSize, "mime_type": created.MimeType}))
		return created, err
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), a.StorageKey); derr != nil {
			s.logger.Error(ctx, "orphaned attachment payload", "storage_key", a.StorageKey, "error", derr)
		}
		return nil, fmt.Errorf("upload attachment: %w", err)
	}

	publish(ctx, s.events, s.logger, events.TypeAttachmentUploaded, actor, roomID, stored.ID)

	meta := stored.Meta()
	return &meta, nil
}

// Download returns the decrypted attachment. Unlike message listing, a
// payload that can not be opened fails the whole call; the failure is
// audited before it is returned.
func (s *AttachmentService) Download(ctx context.Context, actor models.Actor, attachmentID string) (*models.AttachmentContent, error) {
	if !isUUID(attachmentID) {
		return nil, fmt.Errorf("attachment %s: %w", attachmentID, common.ErrorNotFound)
	}

	a, err := s.repomanager.Attachments(s.db).GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("attachment %s: %w", attachmentID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("download attachment: %w", err)
	}

	if _, _, err := s.guard.Authorize(ctx, actor, a.RoomID, PermissionRead); err != nil {
		return nil, err
	}

	data, err := s.open(ctx, a)
	if err != nil {
		meta := map[string]any{"room_id": a.RoomID}
		if common.IsIntegrityError(err) {
			meta["reason"] = integrityReason(err)
		}
		if aerr := s.audit.Record(ctx, nil, auditEntry(actor, models.AuditDownload, models.ResourceAttachment, a.ID, false, meta)); aerr != nil {
			s.logger.Error(ctx, "download failure not audited", "attachment_id", a.ID, "error", aerr)
		}
		s.logger.Warn(ctx, "attachment not decryptable", "attachment_id", a.ID, "error", err)
		return nil, fmt.Errorf("download attachment: %w", err)
	}

	if err := s.audit.Record(ctx, nil, auditEntry(actor, models.AuditDownload, models.ResourceAttachment, a.ID, true,
		map[string]any{"room_id": a.RoomID, "size": len(data)})); err != nil {
		common.WipeByteArray(data)
		return nil, fmt.Errorf("download attachment: %w", err)
	}

	return &models.AttachmentContent{Data: data, FileName: a.OriginalFileName, MimeType: a.MimeType}, nil
}

func (s *AttachmentService) open(ctx context.Context, a *models.Attachment) ([]byte, error) {
	payload, err := s.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch payload: %w", err)
	}

	env, err := envelope.ParseEnvelope(string(payload) + envelope.Separator + a.WrappedKey)
	if err != nil {
		return nil, err
	}
	return s.cipher.OpenBlob(env)
}
