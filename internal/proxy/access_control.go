package proxy

import (
	"context"
	"errors"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/repository"
	agora_errors "agora-chat/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl answers membership questions against the live participant table.
type AccessControl struct {
	conversationRepo repository.ConversationRepository
}

func NewAccessControl(conversationRepo repository.ConversationRepository) *AccessControl {
	return &AccessControl{conversationRepo: conversationRepo}
}

// ConversationFor loads a conversation for userID. It fails with ErrNotFound when
// the conversation is absent and ErrForbidden when userID is not a participant.
func (a *AccessControl) ConversationFor(ctx context.Context, userID, conversationID uuid.UUID) (conversation.Conversation, error) {
	if a.conversationRepo == nil {
		return conversation.Conversation{}, agora_errors.ErrForbidden
	}
	c, err := a.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !c.HasParticipant(userID) {
		return conversation.Conversation{}, agora_errors.ErrForbidden
	}
	return c, nil
}

func (a *AccessControl) CanSendMessage(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, err := a.ConversationFor(ctx, userID, conversationID)
	return err
}

func (a *AccessControl) CanViewConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, err := a.ConversationFor(ctx, userID, conversationID)
	return err
}

// CanJoinRoom is the realtime variant: an unknown room is a plain denial.
func (a *AccessControl) CanJoinRoom(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	err := a.ensureParticipant(ctx, conversationID, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, agora_errors.ErrForbidden), errors.Is(err, agora_errors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (a *AccessControl) ensureParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	if a.conversationRepo == nil {
		return agora_errors.ErrForbidden
	}
	ok, err := a.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return agora_errors.ErrForbidden
	}
	return nil
}
