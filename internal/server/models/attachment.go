package models

import "time"

// Attachment describes an encrypted file in a room. The sealed payload lives
// in object storage under StorageKey; WrappedKey is the data key wrapped
// under the master key.
type Attachment struct {
	ID               string
	RoomID           string
	MessageID        *int64
	UploadedBy       string
	OriginalFileName string
	MimeType         string
	ByteSize         int64
	StorageKey       string
	WrappedKey       string
	UploadedAt       time.Time
}

// AttachmentMeta is the caller-facing description of an uploaded attachment.
type AttachmentMeta struct {
	ID               string
	RoomID           string
	MessageID        *int64
	UploadedBy       string
	OriginalFileName string
	MimeType         string
	ByteSize         int64
	UploadedAt       time.Time
}

// Meta strips storage details from a.
func (a *Attachment) Meta() AttachmentMeta {
	return AttachmentMeta{
		ID:               a.ID,
		RoomID:           a.RoomID,
		MessageID:        a.MessageID,
		UploadedBy:       a.UploadedBy,
		OriginalFileName: a.OriginalFileName,
		MimeType:         a.MimeType,
		ByteSize:         a.ByteSize,
		UploadedAt:       a.UploadedAt,
	}
}

// AttachmentContent is a decrypted download.
type AttachmentContent struct {
	Data     []byte
	FileName string
	MimeType string
}
