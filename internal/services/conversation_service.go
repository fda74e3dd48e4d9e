package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"agora-chat/internal/domain/conversation"
	"agora-chat/internal/domain/user"
	"agora-chat/internal/metrics"
	"agora-chat/internal/proxy"
	"agora-chat/internal/repository"
	agora_errors "agora-chat/pkg/errors"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxGroupParticipants = 256

// ConversationView is a conversation rendered for one viewer.
type ConversationView struct {
	Conversation conversation.Conversation
	Participants []user.Profile
	// Counterpart is the other member of a direct conversation.
	Counterpart *user.Profile
	UnreadCount int
}

type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	access        *proxy.AccessControl
	logger        *logger.Logger
	pairs         singleflight.Group
}

func NewConversationService(store *repository.Store, access *proxy.AccessControl, l *logger.Logger) *ConversationService {
	return &ConversationService{
		conversations: store.Conversations,
		messages:      store.Messages,
		users:         store.Users,
		access:        access,
		logger:        l,
	}
}

// ListConversations returns every conversation of userID, most recent activity first.
func (s *ConversationService) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationView, error) {
	items, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, c := range items {
		for _, p := range c.Participants {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				ids = append(ids, p)
			}
		}
	}
	profiles, err := s.users.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(items))
	for _, c := range items {
		view := s.render(c, userID, profiles)
		view.UnreadCount = unread[c.ID]
		views = append(views, view)
	}
	return views, nil
}

// GetConversation fails with ErrNotFound or ErrForbidden unless userID participates.
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (ConversationView, error) {
	c, err := s.access.ConversationFor(ctx, userID, conversationID)
	if err != nil {
		return ConversationView{}, err
	}
	return s.view(ctx, c, userID)
}

// StartOrGetConversation finds or creates the direct conversation between userID
// and peerID. Concurrent callers in this process share one store round trip;
// across processes the unique pair key decides the winner.
func (s *ConversationService) StartOrGetConversation(ctx context.Context, peerID, userID uuid.UUID) (ConversationView, error) {
	if peerID == uuid.Nil {
		return ConversationView{}, agora_errors.Invalid("peer_id is required")
	}
	if peerID == userID {
		return ConversationView{}, agora_errors.Invalid("cannot start a conversation with yourself")
	}
	for _, id := range []uuid.UUID{peerID, userID} {
		ok, err := s.users.Exists(ctx, id)
		if err != nil {
			return ConversationView{}, err
		}
		if !ok {
			return ConversationView{}, agora_errors.ErrNotFound
		}
	}

	// the shared upsert must outlive any single caller's cancellation
	key := conversation.DirectKey(userID, peerID)
	shared := context.WithoutCancel(ctx)
	ch := s.pairs.DoChan(key, func() (interface{}, error) {
		return s.upsertDirect(shared, userID, peerID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return ConversationView{}, res.Err
		}
		return s.view(ctx, res.Val.(conversation.Conversation), userID)
	case <-ctx.Done():
		return ConversationView{}, ctx.Err()
	}
}

func (s *ConversationService) upsertDirect(ctx context.Context, userID, peerID uuid.UUID) (conversation.Conversation, error) {
	c, created, err := s.conversations.UpsertDirect(ctx, userID, peerID)
	if errors.Is(err, agora_errors.ErrAlreadyExists) {
		// lost a race on the pair key: the winner's row is now visible
		return s.conversations.GetDirect(ctx, userID, peerID)
	}
	if err != nil {
		return conversation.Conversation{}, err
	}
	if created {
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
		s.logger.Ctx(ctx).Info("direct conversation created",
			zap.String("conversation_id", c.ID.String()))
	}
	return c, nil
}

// CreateGroupConversation creates a named group owned by userID.
func (s *ConversationService) CreateGroupConversation(ctx context.Context, userID uuid.UUID, name, image string, participantIDs []uuid.UUID) (ConversationView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ConversationView{}, agora_errors.Invalid("group name is required")
	}

	members := []uuid.UUID{userID}
	seen := map[uuid.UUID]struct{}{userID: {}}
	for _, id := range participantIDs {
		if id == uuid.Nil {
			return ConversationView{}, agora_errors.Invalid("participant id is required")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return ConversationView{}, agora_errors.Invalid("a group needs at least two participants")
	}
	if len(members) > maxGroupParticipants {
		return ConversationView{}, agora_errors.Invalid("too many participants")
	}

	profiles, err := s.users.GetProfiles(ctx, members)
	if err != nil {
		return ConversationView{}, err
	}
	for _, id := range members {
		if _, ok := profiles[id]; !ok {
			return ConversationView{}, agora_errors.ErrNotFound
		}
	}

	c := &conversation.Conversation{
		GroupName:    sql.NullString{String: name, Valid: true},
		GroupImage:   sql.NullString{String: image, Valid: image != ""},
		CreatedBy:    uuid.NullUUID{UUID: userID, Valid: true},
		Participants: members,
	}
	if err := s.conversations.CreateGroup(ctx, c); err != nil {
		return ConversationView{}, err
	}
	metrics.ConversationsCreated.WithLabelValues("group").Inc()

	return s.render(*c, userID, profiles), nil
}

func (s *ConversationService) view(ctx context.Context, c conversation.Conversation, viewer uuid.UUID) (ConversationView, error) {
	profiles, err := s.users.GetProfiles(ctx, c.Participants)
	if err != nil {
		return ConversationView{}, err
	}
	view := s.render(c, viewer, profiles)
	n, err := s.messages.CountUnreadInConversation(ctx, c.ID, viewer)
	if err != nil {
		return ConversationView{}, err
	}
	view.UnreadCount = n
	return view, nil
}

func (s *ConversationService) render(c conversation.Conversation, viewer uuid.UUID, profiles map[uuid.UUID]user.Profile) ConversationView {
	view := ConversationView{Conversation: c, Participants: make([]user.Profile, 0, len(c.Participants))}
	for _, id := range c.Participants {
		p, ok := profiles[id]
		if !ok {
			p = user.Profile{ID: id}
		}
		view.Participants = append(view.Participants, p)
	}
	if peer, ok := c.Counterpart(viewer); ok {
		p, found := profiles[peer]
		if !found {
			p = user.Profile{ID: peer}
		}
		view.Counterpart = &p
	}
	return view
}
