package services

import (
	"context"

	"agora-chat/internal/domain/message"

	"github.com/google/uuid"
)

// Notifier hands committed mutations to the realtime gateway. Implementations
// must not block on slow recipients; delivery is at-most-once.
type Notifier interface {
	MessageReceived(ctx context.Context, recipients []uuid.UUID, msg message.Message) error
	MessageSeen(ctx context.Context, recipient, messageID, conversationID, seenBy uuid.UUID) error
	MessageDeleted(ctx context.Context, recipients []uuid.UUID, messageID, conversationID uuid.UUID) error
	ConversationRead(ctx context.Context, recipient, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) MessageReceived(context.Context, []uuid.UUID, message.Message) error { return nil }

func (NopNotifier) MessageSeen(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return nil
}

func (NopNotifier) MessageDeleted(context.Context, []uuid.UUID, uuid.UUID, uuid.UUID) error {
	return nil
}

func (NopNotifier) ConversationRead(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, []uuid.UUID) error {
	return nil
}

func others(participants []uuid.UUID, self uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}
