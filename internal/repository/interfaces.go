package repository

import (
	"context"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/domain/message"
	"agora-chat/internal/domain/user"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	// UpsertDirect returns the unique direct conversation of the pair, creating it
	// when absent. created is false when an existing row was returned.
	UpsertDirect(ctx context.Context, a, b uuid.UUID) (conv conversation.Conversation, created bool, err error)
	GetDirect(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error)
	CreateGroup(ctx context.Context, c *conversation.Conversation) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	// UpdateLastMessage moves the snapshot forward; older sequences are ignored.
	UpdateLastMessage(ctx context.Context, conversationID uuid.UUID, last conversation.LastMessage) error
	// RedactLastMessage flags the snapshot deleted when it points at messageID.
	RedactLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
}

// ReadReceipt identifies a message flipped to read by a bulk mark.
type ReadReceipt struct {
	MessageID uuid.UUID
	SenderID  uuid.UUID
}

type MessageRepository interface {
	// Create assigns the next per-conversation sequence and inserts the message atomically.
	Create(ctx context.Context, conversationID, senderID uuid.UUID, content string) (message.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	// ListPage returns up to limit messages skipping offset newest ones, ordered oldest to newest.
	ListPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]message.Message, error)
	// SoftDelete flips the deleted flag. changed is false when it was already set.
	SoftDelete(ctx context.Context, id uuid.UUID) (changed bool, err error)
	// AddReader adds userID to read_by unless present or the sender. changed reports a write.
	AddReader(ctx context.Context, messageID, userID uuid.UUID) (changed bool, err error)
	// MarkConversationRead adds userID to every message unread by them in one atomic statement.
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]ReadReceipt, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error)
	CountUnreadInConversation(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
}

type UserRepository interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]user.Profile, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Users         UserRepository
}
