package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/domain/message"
	"agora-chat/internal/domain/user"
	agora_errors "agora-chat/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore keeps every table in process memory behind a single RWMutex.
// It honours the same contracts as the Postgres repositories and backs
// STORE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]user.Profile
	conversations map[uuid.UUID]*conversation.Conversation
	directKeys    map[string]uuid.UUID
	messages      map[uuid.UUID]*message.Message
	byConv        map[uuid.UUID][]uuid.UUID
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[uuid.UUID]user.Profile),
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		directKeys:    make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID]*message.Message),
		byConv:        make(map[uuid.UUID][]uuid.UUID),
		now:           time.Now,
	}
}

// Store exposes the memory backend through the repository interfaces.
func (s *MemoryStore) Store() *Store {
	return &Store{
		Conversations: memoryConversations{s},
		Messages:      memoryMessages{s},
		Users:         memoryUsers{s},
	}
}

// AddUser registers a profile. Used by seeding and tests.
func (s *MemoryStore) AddUser(p user.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.users[p.ID] = p
}

// Messages returns a copy of every message in a conversation ordered by seq.
func (s *MemoryStore) Messages(conversationID uuid.UUID) []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byConv[conversationID]
	out := make([]message.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMessage(s.messages[id]))
	}
	return out
}

func copyConversation(c *conversation.Conversation) conversation.Conversation {
	out := *c
	out.Participants = append([]uuid.UUID(nil), c.Participants...)
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return out
}

func copyMessage(m *message.Message) message.Message {
	out := *m
	out.ReadBy = append([]uuid.UUID{}, m.ReadBy...)
	return out
}

type memoryConversations struct{ s *MemoryStore }

func (r memoryConversations) GetByID(_ context.Context, id uuid.UUID) (conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return conversation.Conversation{}, agora_errors.ErrNotFound
	}
	return copyConversation(c), nil
}

func (r memoryConversations) GetDirect(_ context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.directKeys[conversation.DirectKey(a, b)]
	if !ok {
		return conversation.Conversation{}, agora_errors.ErrNotFound
	}
	return copyConversation(r.s.conversations[id]), nil
}

func (r memoryConversations) UpsertDirect(_ context.Context, a, b uuid.UUID) (conversation.Conversation, bool, error) {
	key := conversation.DirectKey(a, b)

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.directKeys[key]; ok {
		return copyConversation(r.s.conversations[id]), false, nil
	}

	now := r.s.now()
	c := &conversation.Conversation{
		ID:           uuid.New(),
		DirectKey:    sql.NullString{String: key, Valid: true},
		CreatedBy:    uuid.NullUUID{UUID: a, Valid: true},
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []uuid.UUID{a, b},
	}
	r.s.conversations[c.ID] = c
	r.s.directKeys[key] = c.ID
	return copyConversation(c), true, nil
}

func (r memoryConversations) CreateGroup(_ context.Context, c *conversation.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	c.ID = uuid.New()
	c.IsGroup = true
	c.DirectKey = sql.NullString{}
	c.CreatedAt = now
	c.UpdatedAt = now
	stored := copyConversation(c)
	r.s.conversations[c.ID] = &stored
	return nil
}

func (r memoryConversations) ListForUser(_ context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := make([]conversation.Conversation, 0)
	for _, c := range r.s.conversations {
		if c.HasParticipant(userID) {
			items = append(items, copyConversation(c))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ai, aj := items[i].ActivityAt(), items[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
	return items, nil
}

func (r memoryConversations) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return false, nil
	}
	return c.HasParticipant(userID), nil
}

func (r memoryConversations) UpdateLastMessage(_ context.Context, conversationID uuid.UUID, last conversation.LastMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return agora_errors.ErrNotFound
	}
	if c.LastMessage != nil && c.LastMessage.Seq >= last.Seq {
		return nil
	}
	last.Deleted = false
	c.LastMessage = &last
	c.UpdatedAt = r.s.now()
	return nil
}

func (r memoryConversations) RedactLastMessage(_ context.Context, conversationID, messageID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[conversationID]
	if !ok {
		return agora_errors.ErrNotFound
	}
	if c.LastMessage != nil && c.LastMessage.MessageID == messageID {
		c.LastMessage.Deleted = true
		c.LastMessage.Content = message.DeletedPlaceholder
		c.UpdatedAt = r.s.now()
	}
	return nil
}

type memoryMessages struct{ s *MemoryStore }

func (r memoryMessages) Create(_ context.Context, conversationID, senderID uuid.UUID, content string) (message.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.conversations[conversationID]
	if !ok {
		return message.Message{}, agora_errors.ErrNotFound
	}
	c.LastSeq++
	now := r.s.now()
	c.UpdatedAt = now

	m := &message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Seq:            c.LastSeq,
		SenderID:       senderID,
		Content:        content,
		ReadBy:         []uuid.UUID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.s.messages[m.ID] = m
	r.s.byConv[conversationID] = append(r.s.byConv[conversationID], m.ID)
	return copyMessage(m), nil
}

func (r memoryMessages) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return message.Message{}, agora_errors.ErrNotFound
	}
	return copyMessage(m), nil
}

// ListPage walks byConv, which is already in seq order.
func (r memoryMessages) ListPage(_ context.Context, conversationID uuid.UUID, offset, limit int) ([]message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.byConv[conversationID]
	end := len(ids) - offset
	if end <= 0 || limit <= 0 {
		return []message.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	items := make([]message.Message, 0, end-start)
	for _, id := range ids[start:end] {
		items = append(items, copyMessage(r.s.messages[id]))
	}
	return items, nil
}

func (r memoryMessages) SoftDelete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return false, agora_errors.ErrNotFound
	}
	if m.Deleted {
		return false, nil
	}
	m.Deleted = true
	m.UpdatedAt = r.s.now()
	return true, nil
}

func (r memoryMessages) AddReader(_ context.Context, messageID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[messageID]
	if !ok {
		return false, agora_errors.ErrNotFound
	}
	if m.SenderID == userID || m.ReadByUser(userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, userID)
	m.UpdatedAt = r.s.now()
	return true, nil
}

func (r memoryMessages) MarkConversationRead(_ context.Context, conversationID, userID uuid.UUID) ([]ReadReceipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	receipts := make([]ReadReceipt, 0)
	now := r.s.now()
	for _, id := range r.s.byConv[conversationID] {
		m := r.s.messages[id]
		if !m.UnreadFor(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		m.UpdatedAt = now
		receipts = append(receipts, ReadReceipt{MessageID: m.ID, SenderID: m.SenderID})
	}
	return receipts, nil
}

func (r memoryMessages) CountUnread(_ context.Context, userID uuid.UUID) (map[uuid.UUID]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for convID, c := range r.s.conversations {
		if !c.HasParticipant(userID) {
			continue
		}
		if n := r.countLocked(convID, userID); n > 0 {
			counts[convID] = n
		}
	}
	return counts, nil
}

func (r memoryMessages) CountUnreadInConversation(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[conversationID]
	if !ok || !c.HasParticipant(userID) {
		return 0, nil
	}
	return r.countLocked(conversationID, userID), nil
}

func (r memoryMessages) countLocked(conversationID, userID uuid.UUID) int {
	n := 0
	for _, id := range r.s.byConv[conversationID] {
		if r.s.messages[id].UnreadFor(userID) {
			n++
		}
	}
	return n
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.users[id]
	return ok, nil
}

func (r memoryUsers) GetProfiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]user.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	profiles := make(map[uuid.UUID]user.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.s.users[id]; ok {
			profiles[id] = p
		}
	}
	return profiles, nil
}
