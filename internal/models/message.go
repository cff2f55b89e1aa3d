package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an individual entry of a category conversation. Messages are created when a user submits a
// question or when the answer (or the failure placeholder) arrives, and are never mutated afterwards.
type Message struct {
	ID        string
	Text      string
	Origin    Origin
	Sources   []Source
	Timestamp time.Time
}

// Origin tells who authored a message.
type Origin string

const (
	// OriginUser marks a message typed by the user.
	OriginUser Origin = "user"
	// OriginSystem marks a message produced from the Q&A endpoint response, including the failure apology.
	OriginSystem Origin = "system"
)

// NewUserMessage creates a message authored by the user with a fresh identifier.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Text:      text,
		Origin:    OriginUser,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a system-authored message with a fresh identifier.
func NewSystemMessage(text string, sources []Source) Message {
	return Message{
		ID:        uuid.New().String(),
		Text:      text,
		Origin:    OriginSystem,
		Sources:   sources,
		Timestamp: time.Now(),
	}
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool {
	return m.Origin == OriginUser
}
