package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a member of the organizational directory
type User struct {
	ID            uuid.UUID
	Name          string
	Rank          string
	GroupID       uuid.UUID
	RSAKey        string
	UID           string
	ExpoPushToken string
	Activated     bool
	Locked        bool
	LastLogin     *time.Time
	LastLogout    *time.Time
}

// Group is a named collection of users plus the list of chats it may access
type Group struct {
	ID    uuid.UUID
	Name  string
	City  string
	Chats []uuid.UUID
}

// HasChat reports whether the group's access list contains the given chat
func (g Group) HasChat(chatID uuid.UUID) bool {
	for _, id := range g.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}

// Chat is a titled, append-only message log
type Chat struct {
	ID    uuid.UUID
	Title string
}

// Message is one entry in a chat's message sequence
type Message struct {
	ID        string
	ChatID    uuid.UUID
	Text      string
	ImageID   *uuid.UUID
	Timestamp time.Time
	SenderID  uuid.UUID
	Nickname  string
}

// Image is a stored attachment record; ContentHash is unique per stored file
type Image struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	CreatedBy   uuid.UUID
	ResourceID  string
	Extension   string
	ContentHash string
}

// RequestIdentifier is a consumed one-time request nonce
type RequestIdentifier struct {
	ID         uuid.UUID
	ClaimedAt  time.Time
	ClaimedBy  uuid.UUID
	Identifier string
}
