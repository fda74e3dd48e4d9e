package conversation

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation represents the conversations table
type Conversation struct {
	ID         uuid.UUID
	IsGroup    bool
	DirectKey  sql.NullString
	GroupName  sql.NullString
	GroupImage sql.NullString
	CreatedBy  uuid.NullUUID
	LastSeq    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Denormalized snapshot of the most recent message, nil until the first send.
	LastMessage *LastMessage

	Participants []uuid.UUID
}

// LastMessage is the per-conversation lastMessage snapshot.
type LastMessage struct {
	MessageID uuid.UUID
	Seq       int64
	SenderID  uuid.UUID
	Content   string
	Deleted   bool
	CreatedAt time.Time
}

// Participant represents the conversation_participants table
type Participant struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	JoinedAt       time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "conversation_participants"
}

// HasParticipant reports whether userID is in the participant list.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of a direct conversation.
func (c *Conversation) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	if c.IsGroup {
		return uuid.Nil, false
	}
	for _, p := range c.Participants {
		if p != userID {
			return p, true
		}
	}
	return uuid.Nil, false
}

// ActivityAt is the sort key of the conversation list.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// DirectKey is the canonical unordered pair key "min:max" of two users.
func DirectKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if strings.Compare(as, bs) > 0 {
		as, bs = bs, as
	}
	return as + ":" + bs
}
