package services

import (
	"context"

	"agora-chat/internal/proxy"
	"agora-chat/internal/repository"

	"github.com/google/uuid"
)

// UnreadAggregator computes the authoritative unread counts clients reconcile against.
type UnreadAggregator struct {
	messages repository.MessageRepository
	access   *proxy.AccessControl
}

func NewUnreadAggregator(store *repository.Store, access *proxy.AccessControl) *UnreadAggregator {
	return &UnreadAggregator{messages: store.Messages, access: access}
}

// GetUnreadCounts returns a sparse map: conversations with nothing unread are absent.
func (a *UnreadAggregator) GetUnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	return a.messages.CountUnread(ctx, userID)
}

// CountForConversation is the single-room variant used after a reconnect.
func (a *UnreadAggregator) CountForConversation(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	if err := a.access.CanViewConversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return a.messages.CountUnreadInConversation(ctx, conversationID, userID)
}
