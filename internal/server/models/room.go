// Package models defines server-side data models persisted in the database
// and the decrypted views returned to callers.
package models

import "time"

// Actor is the authenticated caller of every messaging operation. It is
// resolved by the transport layer from the access token.
type Actor struct {
	UserID string
	OrgID  string
}

// RoomType enumerates room kinds.
type RoomType string

const (
	RoomTypeGeneral RoomType = "general"
	RoomTypePrivate RoomType = "private"
	RoomTypeGroup   RoomType = "group"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeGeneral, RoomTypePrivate, RoomTypeGroup:
		return true
	}
	return false
}

// Room is a conversation space scoped to one organization. Rooms are never
// hard-deleted.
type Room struct {
	ID        string
	OrgID     string
	Type      RoomType
	Name      string
	DirectKey string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant is a user's membership in a room together with read state.
// LastReadMessageID is the read marker: every live message from another
// sender with a greater id counts as unread. LastReadAt only records when the
// marker last moved.
type Participant struct {
	RoomID            string
	UserID            string
	JoinedAt          time.Time
	LastReadAt        time.Time
	LastReadMessageID int64
	UnreadCount       int64
}

// RoomSummary is a room as seen by one of its participants.
type RoomSummary struct {
	Room              Room
	UnreadCount       int64
	LastReadAt        time.Time
	LastReadMessageID int64
}
