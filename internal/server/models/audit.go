package models

import "time"

// AuditAction names an audited operation.
type AuditAction string

const (
	AuditSend           AuditAction = "send"
	AuditRead           AuditAction = "read"
	AuditUpload         AuditAction = "upload"
	AuditDownload       AuditAction = "download"
	AuditRoomCreate     AuditAction = "room_create"
	AuditAccessDenied   AuditAction = "access_denied"
	AuditDecryptFailure AuditAction = "decrypt_failure"
)

// Audited resource types.
const (
	ResourceRoom       = "room"
	ResourceMessage    = "message"
	ResourceAttachment = "attachment"
)

// AuditEntry is an append-only record of a sensitive action. Metadata must
// never carry plaintext or key material.
type AuditEntry struct {
	ID           string
	OrgID        string
	ActorID      string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	Success      bool
	CreatedAt    time.Time
}
