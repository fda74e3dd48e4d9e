package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/domain/message"
	"agora-chat/internal/metrics"
	"agora-chat/internal/proxy"
	"agora-chat/internal/repository"
	agora_errors "agora-chat/pkg/errors"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxContentLength = 10000

type MessageService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	access        *proxy.AccessControl
	notifier      Notifier
	logger        *logger.Logger
	locks         conversationLocks
}

func NewMessageService(store *repository.Store, access *proxy.AccessControl, notifier Notifier, l *logger.Logger) *MessageService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageService{
		conversations: store.Conversations,
		messages:      store.Messages,
		access:        access,
		notifier:      notifier,
		logger:        l,
	}
}

// SendMessage persists a message, moves the lastMessage snapshot, then pushes
// message-received to the other participants. Only the insert can fail the call.
func (s *MessageService) SendMessage(ctx context.Context, conversationID, userID uuid.UUID, content string) (message.Message, error) {
	if strings.TrimSpace(content) == "" {
		return message.Message{}, agora_errors.Invalid("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return message.Message{}, agora_errors.Invalid("content is too long")
	}

	c, err := s.access.ConversationFor(ctx, userID, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	m, err := s.messages.Create(ctx, conversationID, userID, content)
	if err != nil {
		return message.Message{}, err
	}
	metrics.MessagesSent.WithLabelValues(conversationType(c)).Inc()

	err = s.conversations.UpdateLastMessage(ctx, conversationID, conversation.LastMessage{
		MessageID: m.ID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		s.logger.Ctx(ctx).Warn("last message update failed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("message_id", m.ID.String()),
			zap.Error(err))
	}

	if recipients := others(c.Participants, userID); len(recipients) > 0 {
		s.push(ctx, "message-received", s.notifier.MessageReceived(ctx, recipients, m))
	}
	return m, nil
}

// GetMessages returns one page of history, oldest to newest within the page.
// Pages 0 and 1 both address the most recent messages.
func (s *MessageService) GetMessages(ctx context.Context, conversationID, userID uuid.UUID, page int) ([]message.Message, error) {
	if page < 0 {
		return nil, agora_errors.Invalid("page must not be negative")
	}
	if err := s.access.CanViewConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	items, err := s.messages.ListPage(ctx, conversationID, message.PageOffset(page), message.PageSize)
	if err != nil {
		return nil, err
	}
	out := make([]message.Message, 0, len(items))
	for _, m := range items {
		out = append(out, m.Redacted())
	}
	return out, nil
}

// DeleteMessage soft deletes a message authored by userID. A non-nil
// conversationID must match the message's conversation.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID uuid.UUID, conversationID *uuid.UUID) (message.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if conversationID != nil && *conversationID != m.ConversationID {
		return message.Message{}, agora_errors.ErrNotFound
	}
	if m.SenderID != userID {
		return message.Message{}, agora_errors.ErrForbidden
	}

	unlock := s.locks.lock(m.ConversationID)
	defer unlock()

	changed, err := s.messages.SoftDelete(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	m.Deleted = true
	if !changed {
		return m.Redacted(), nil
	}
	metrics.MessagesDeleted.Inc()

	if err := s.conversations.RedactLastMessage(ctx, m.ConversationID, m.ID); err != nil {
		s.logger.Ctx(ctx).Warn("last message redaction failed",
			zap.String("conversation_id", m.ConversationID.String()),
			zap.String("message_id", m.ID.String()),
			zap.Error(err))
	}

	c, err := s.conversations.GetByID(ctx, m.ConversationID)
	if err != nil {
		s.logger.Ctx(ctx).Warn("delete push skipped", zap.Error(err))
		return m.Redacted(), nil
	}
	if recipients := others(c.Participants, userID); len(recipients) > 0 {
		s.push(ctx, "message-deleted", s.notifier.MessageDeleted(ctx, recipients, m.ID, m.ConversationID))
	}
	return m.Redacted(), nil
}

// MarkMessageSeen records userID in the message's read set. Marking your own
// message, or marking twice, succeeds without a write or a push.
func (s *MessageService) MarkMessageSeen(ctx context.Context, messageID, conversationID, userID uuid.UUID) (message.Message, error) {
	if err := s.access.CanViewConversation(ctx, userID, conversationID); err != nil {
		return message.Message{}, err
	}
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if m.ConversationID != conversationID {
		return message.Message{}, agora_errors.ErrNotFound
	}
	if m.SenderID == userID {
		return m.Redacted(), nil
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	changed, err := s.messages.AddReader(ctx, messageID, userID)
	if err != nil {
		return message.Message{}, err
	}
	if !changed {
		if !m.ReadByUser(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
		return m.Redacted(), nil
	}
	m.ReadBy = append(m.ReadBy, userID)
	metrics.ReadReceipts.WithLabelValues("single").Inc()

	s.push(ctx, "message-seen", s.notifier.MessageSeen(ctx, m.SenderID, m.ID, conversationID, userID))
	return m.Redacted(), nil
}

// MarkConversationRead flips every message unread by userID in one atomic store
// operation and returns how many changed.
func (s *MessageService) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	if err := s.access.CanViewConversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	receipts, err := s.messages.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	if len(receipts) == 0 {
		return 0, nil
	}
	metrics.ReadReceipts.WithLabelValues("bulk").Add(float64(len(receipts)))

	bySender := make(map[uuid.UUID][]uuid.UUID)
	order := make([]uuid.UUID, 0)
	for _, r := range receipts {
		if _, ok := bySender[r.SenderID]; !ok {
			order = append(order, r.SenderID)
		}
		bySender[r.SenderID] = append(bySender[r.SenderID], r.MessageID)
	}
	for _, sender := range order {
		s.push(ctx, "conversation-read", s.notifier.ConversationRead(ctx, sender, conversationID, userID, bySender[sender]))
	}
	return len(receipts), nil
}

func (s *MessageService) push(ctx context.Context, event string, err error) {
	metrics.PushEvents.WithLabelValues(event).Inc()
	if err == nil {
		return
	}
	metrics.PushFailures.WithLabelValues(event).Inc()
	s.logger.Ctx(ctx).Warn("push failed", zap.String("event", event), zap.Error(err))
}

func conversationType(c conversation.Conversation) string {
	if c.IsGroup {
		return "group"
	}
	return "direct"
}
