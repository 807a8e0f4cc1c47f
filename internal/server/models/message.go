package models

import "time"

// Message is a stored chat message. Content holds the persisted envelope
// ("payload:::wrappedKey"), never plaintext.
type Message struct {
	ID               int64
	RoomID           string
	SenderID         string
	Content          string
	MentionedUserIDs []string
	ReplyToMessageID *int64
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// MessageView is a decrypted message returned to a participant. When the
// stored record can not be opened Undecryptable is set and Text carries a
// placeholder.
type MessageView struct {
	ID               int64
	RoomID           string
	SenderID         string
	Text             string
	Undecryptable    bool
	MentionedUserIDs []string
	ReplyToMessageID *int64
	CreatedAt        time.Time
}
