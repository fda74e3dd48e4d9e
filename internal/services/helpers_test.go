package services

import (
	"context"
	"sync"
	"testing"

	"agora-chat/internal/domain/message"
	"agora-chat/internal/domain/user"
	"agora-chat/internal/proxy"
	"agora-chat/internal/repository"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type pushed struct {
	Event      string
	Recipients []uuid.UUID
	MessageID  uuid.UUID
	Conv       uuid.UUID
	Actor      uuid.UUID
	MessageIDs []uuid.UUID
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pushed
}

func (n *recordingNotifier) record(p pushed) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, p)
}

func (n *recordingNotifier) MessageReceived(_ context.Context, recipients []uuid.UUID, msg message.Message) error {
	n.record(pushed{Event: "message-received", Recipients: recipients, MessageID: msg.ID, Conv: msg.ConversationID, Actor: msg.SenderID})
	return nil
}

func (n *recordingNotifier) MessageSeen(_ context.Context, recipient, messageID, conversationID, seenBy uuid.UUID) error {
	n.record(pushed{Event: "message-seen", Recipients: []uuid.UUID{recipient}, MessageID: messageID, Conv: conversationID, Actor: seenBy})
	return nil
}

func (n *recordingNotifier) MessageDeleted(_ context.Context, recipients []uuid.UUID, messageID, conversationID uuid.UUID) error {
	n.record(pushed{Event: "message-deleted", Recipients: recipients, MessageID: messageID, Conv: conversationID})
	return nil
}

func (n *recordingNotifier) ConversationRead(_ context.Context, recipient, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) error {
	n.record(pushed{Event: "conversation-read", Recipients: []uuid.UUID{recipient}, Conv: conversationID, Actor: readerID, MessageIDs: messageIDs})
	return nil
}

func (n *recordingNotifier) ofType(event string) []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]pushed, 0)
	for _, p := range n.events {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	mem      *repository.MemoryStore
	convs    *ConversationService
	messages *MessageService
	unread   *UnreadAggregator
	notifier *recordingNotifier
	alice    uuid.UUID
	bob      uuid.UUID
	carol    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := repository.NewMemoryStore()
	f := &fixture{mem: mem, notifier: &recordingNotifier{}, alice: uuid.New(), bob: uuid.New(), carol: uuid.New()}
	mem.AddUser(user.Profile{ID: f.alice, Username: "alice", DisplayName: "Alice"})
	mem.AddUser(user.Profile{ID: f.bob, Username: "bob", DisplayName: "Bob"})
	mem.AddUser(user.Profile{ID: f.carol, Username: "carol", DisplayName: "Carol"})

	store := mem.Store()
	access := proxy.NewAccessControl(store.Conversations)
	l := logger.NewNop()
	f.convs = NewConversationService(store, access, l)
	f.messages = NewMessageService(store, access, f.notifier, l)
	f.unread = NewUnreadAggregator(store, access)
	return f
}

func (f *fixture) direct(t *testing.T, a, b uuid.UUID) uuid.UUID {
	t.Helper()
	view, err := f.convs.StartOrGetConversation(context.Background(), b, a)
	require.NoError(t, err)
	return view.Conversation.ID
}

func (f *fixture) send(t *testing.T, convID, from uuid.UUID, content string) message.Message {
	t.Helper()
	m, err := f.messages.SendMessage(context.Background(), convID, from, content)
	require.NoError(t, err)
	return m
}
