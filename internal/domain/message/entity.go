package message

import (
	"time"

	"github.com/google/uuid"
)

const (
	// PageSize is the fixed page length of the message history.
	PageSize = 20

	// DeletedPlaceholder replaces the content of soft-deleted messages on read.
	DeletedPlaceholder = "This message was deleted."
)

// Message represents the messages table
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Seq            int64
	SenderID       uuid.UUID
	Content        string
	Deleted        bool
	ReadBy         []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Message) TableName() string {
	return "messages"
}

// ReadByUser reports whether userID is already in the read set.
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r == userID {
			return true
		}
	}
	return false
}

// UnreadFor is the single unread predicate shared by every store.
func (m *Message) UnreadFor(userID uuid.UUID) bool {
	return !m.Deleted && m.SenderID != userID && !m.ReadByUser(userID)
}

// Redacted returns a copy safe to hand to readers.
func (m Message) Redacted() Message {
	if m.Deleted {
		m.Content = DeletedPlaceholder
	}
	if m.ReadBy != nil {
		readBy := make([]uuid.UUID, len(m.ReadBy))
		copy(readBy, m.ReadBy)
		m.ReadBy = readBy
	}
	return m
}

// PageOffset maps a 1-based page number to a row offset. Page 0 is treated as page 1.
func PageOffset(page int) int {
	if page <= 1 {
		return 0
	}
	return (page - 1) * PageSize
}
