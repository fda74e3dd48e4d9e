package clientstate

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"agora-chat/internal/domain/message"
	"agora-chat/internal/domain/user"
	"agora-chat/internal/proxy"
	"agora-chat/internal/repository"
	"agora-chat/internal/services"
	"agora-chat/internal/websocket"
	"agora-chat/pkg/events"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, eventType string, payload interface{}) events.Event {
	t.Helper()
	ev, err := events.New(eventType, payload)
	require.NoError(t, err)
	return ev
}

func received(t *testing.T, m events.Message) events.Event {
	return mustEvent(t, events.TypeMessageReceived, events.MessageReceivedPayload{RoomID: m.ConversationID, Message: m})
}

func TestApply_MessageReceivedCountsOnce(t *testing.T) {
	self, peer, room := uuid.New(), uuid.New(), uuid.New()
	c := New(self)

	m := events.Message{ID: uuid.New(), ConversationID: room, Seq: 1, SenderID: peer, Content: "hi", CreatedAt: time.Now()}
	require.NoError(t, c.Apply(received(t, m)))
	require.NoError(t, c.Apply(received(t, m)))
	assert.Equal(t, 1, c.Unread(room))

	own := events.Message{ID: uuid.New(), ConversationID: room, Seq: 2, SenderID: self, Content: "mine", CreatedAt: time.Now()}
	require.NoError(t, c.Apply(received(t, own)))
	assert.Equal(t, 1, c.Unread(room))

	r, ok := c.Room(room)
	require.True(t, ok)
	require.NotNil(t, r.LastMessage)
	assert.Equal(t, own.ID, r.LastMessage.ID)
	assert.Equal(t, map[uuid.UUID]int{room: 1}, c.UnreadCounts())
}

func TestApply_SeenAndConversationRead(t *testing.T) {
	self, peer, room := uuid.New(), uuid.New(), uuid.New()
	c := New(self)

	a := events.Message{ID: uuid.New(), ConversationID: room, Seq: 1, SenderID: peer}
	b := events.Message{ID: uuid.New(), ConversationID: room, Seq: 2, SenderID: peer}
	require.NoError(t, c.Apply(received(t, a)))
	require.NoError(t, c.Apply(received(t, b)))
	assert.Equal(t, 2, c.Unread(room))

	// someone else seeing a message does not touch our count
	require.NoError(t, c.Apply(mustEvent(t, events.TypeMessageSeen, events.MessageSeenPayload{MessageID: a.ID, ConversationID: room, SeenBy: peer})))
	assert.Equal(t, 2, c.Unread(room))

	require.NoError(t, c.Apply(mustEvent(t, events.TypeMessageSeen, events.MessageSeenPayload{MessageID: a.ID, ConversationID: room, SeenBy: self})))
	assert.Equal(t, 1, c.Unread(room))

	require.NoError(t, c.Apply(mustEvent(t, events.TypeConversationRead, events.ConversationReadPayload{ConversationID: room, ReaderID: self, MessageIDs: []uuid.UUID{b.ID}})))
	assert.Zero(t, c.Unread(room))
	assert.Empty(t, c.UnreadCounts())
}

func TestApply_DeleteRedactsAndDecrements(t *testing.T) {
	self, peer, room := uuid.New(), uuid.New(), uuid.New()
	c := New(self)

	m := events.Message{ID: uuid.New(), ConversationID: room, Seq: 1, SenderID: peer, Content: "secret"}
	require.NoError(t, c.Apply(received(t, m)))
	require.NoError(t, c.Apply(mustEvent(t, events.TypeMessageDeleted, events.MessageDeletedPayload{MessageID: m.ID, ConversationID: room})))

	assert.Zero(t, c.Unread(room))
	r, _ := c.Room(room)
	require.NotNil(t, r.LastMessage)
	assert.True(t, r.LastMessage.Deleted)
	assert.Equal(t, message.DeletedPlaceholder, r.LastMessage.Content)
	assert.Empty(t, c.StaleRooms())
}

func TestApply_UntrackedDeleteMarksStale(t *testing.T) {
	self, room := uuid.New(), uuid.New()
	c := New(self)
	c.Reconcile([]RoomState{{ConversationID: room, Unread: 3}})

	require.NoError(t, c.Apply(mustEvent(t, events.TypeMessageDeleted, events.MessageDeletedPayload{MessageID: uuid.New(), ConversationID: room})))
	assert.Equal(t, 3, c.Unread(room))
	assert.Equal(t, []uuid.UUID{room}, c.StaleRooms())

	c.SetUnread(room, 2)
	assert.Equal(t, 2, c.Unread(room))
	assert.Empty(t, c.StaleRooms())
}

func TestApply_Typing(t *testing.T) {
	self, peer, room := uuid.New(), uuid.New(), uuid.New()
	c := New(self)

	require.NoError(t, c.Apply(mustEvent(t, events.TypeTyping, events.TypingPayload{ConversationID: room, UserID: peer, IsTyping: true})))
	r, _ := c.Room(room)
	assert.Equal(t, []uuid.UUID{peer}, r.Typing)

	// a message from the typist clears the indicator
	require.NoError(t, c.Apply(received(t, events.Message{ID: uuid.New(), ConversationID: room, Seq: 1, SenderID: peer})))
	r, _ = c.Room(room)
	assert.Empty(t, r.Typing)

	require.NoError(t, c.Apply(mustEvent(t, events.TypeTyping, events.TypingPayload{ConversationID: room, UserID: self, IsTyping: true})))
	r, _ = c.Room(room)
	assert.Empty(t, r.Typing)
}

// Pushes relayed by different nodes may arrive out of commit order; the room
// keeps the highest seq as its last message.
func TestApply_OutOfOrderPushesKeepHighestSeq(t *testing.T) {
	self, peer, room := uuid.New(), uuid.New(), uuid.New()
	c := New(self)
	now := time.Now()

	newer := events.Message{ID: uuid.New(), ConversationID: room, Seq: 8, SenderID: peer, CreatedAt: now}
	older := events.Message{ID: uuid.New(), ConversationID: room, Seq: 7, SenderID: peer, CreatedAt: now.Add(-time.Millisecond)}
	require.NoError(t, c.Apply(received(t, newer)))
	require.NoError(t, c.Apply(received(t, older)))

	r, ok := c.Room(room)
	require.True(t, ok)
	require.NotNil(t, r.LastMessage)
	assert.Equal(t, newer.ID, r.LastMessage.ID)
	assert.Equal(t, now.UnixNano(), r.LastActivity.UnixNano())
	assert.Equal(t, 2, r.Unread)
}

func TestRooms_OrderedByActivity(t *testing.T) {
	c := New(uuid.New())
	older, newer := uuid.New(), uuid.New()
	now := time.Now()
	c.Reconcile([]RoomState{
		{ConversationID: older, LastActivity: now.Add(-time.Hour)},
		{ConversationID: newer, LastActivity: now},
	})

	rooms := c.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, newer, rooms[0].ConversationID)
	assert.Equal(t, older, rooms[1].ConversationID)
	assert.ElementsMatch(t, []uuid.UUID{older, newer}, c.RoomIDs())
}

// cacheNotifier feeds service pushes straight into per-user caches.
type cacheNotifier struct {
	t      *testing.T
	caches map[uuid.UUID]*Cache
}

func (n *cacheNotifier) apply(recipient uuid.UUID, ev events.Event) {
	if c, ok := n.caches[recipient]; ok {
		require.NoError(n.t, c.Apply(ev))
	}
}

func (n *cacheNotifier) MessageReceived(_ context.Context, recipients []uuid.UUID, msg message.Message) error {
	ev := received(n.t, websocket.WireMessage(msg))
	for _, r := range recipients {
		n.apply(r, ev)
	}
	return nil
}

func (n *cacheNotifier) MessageSeen(_ context.Context, recipient, messageID, conversationID, seenBy uuid.UUID) error {
	n.apply(recipient, mustEvent(n.t, events.TypeMessageSeen, events.MessageSeenPayload{MessageID: messageID, ConversationID: conversationID, SeenBy: seenBy}))
	return nil
}

func (n *cacheNotifier) MessageDeleted(_ context.Context, recipients []uuid.UUID, messageID, conversationID uuid.UUID) error {
	ev := mustEvent(n.t, events.TypeMessageDeleted, events.MessageDeletedPayload{MessageID: messageID, ConversationID: conversationID})
	for _, r := range recipients {
		n.apply(r, ev)
	}
	return nil
}

func (n *cacheNotifier) ConversationRead(_ context.Context, recipient, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) error {
	n.apply(recipient, mustEvent(n.t, events.TypeConversationRead, events.ConversationReadPayload{ConversationID: conversationID, ReaderID: readerID, MessageIDs: messageIDs}))
	return nil
}

type cacheHarness struct {
	alice, bob uuid.UUID
	convID     uuid.UUID
	caches     map[uuid.UUID]*Cache
	msgs       *services.MessageService
	unread     *services.UnreadAggregator
}

// newCacheHarness wires the messaging services to one cache per user over a
// direct conversation between alice and bob.
func newCacheHarness(t *testing.T) *cacheHarness {
	t.Helper()
	mem := repository.NewMemoryStore()
	h := &cacheHarness{alice: uuid.New(), bob: uuid.New()}
	mem.AddUser(user.Profile{ID: h.alice, Username: "alice"})
	mem.AddUser(user.Profile{ID: h.bob, Username: "bob"})

	h.caches = map[uuid.UUID]*Cache{h.alice: New(h.alice), h.bob: New(h.bob)}
	store := mem.Store()
	access := proxy.NewAccessControl(store.Conversations)
	l := logger.NewNop()
	convs := services.NewConversationService(store, access, l)
	h.msgs = services.NewMessageService(store, access, &cacheNotifier{t: t, caches: h.caches}, l)
	h.unread = services.NewUnreadAggregator(store, access)

	view, err := convs.StartOrGetConversation(context.Background(), h.bob, h.alice)
	require.NoError(t, err)
	h.convID = view.Conversation.ID
	return h
}

func (h *cacheHarness) serverCounts(t *testing.T, u uuid.UUID) map[uuid.UUID]int {
	t.Helper()
	counts, err := h.unread.GetUnreadCounts(context.Background(), u)
	require.NoError(t, err)
	return counts
}

func TestMarkSeen_SingleReceiptMatchesServer(t *testing.T) {
	ctx := context.Background()
	h := newCacheHarness(t)
	bobCache := h.caches[h.bob]

	hi, err := h.msgs.SendMessage(ctx, h.convID, h.alice, "hi")
	require.NoError(t, err)
	second, err := h.msgs.SendMessage(ctx, h.convID, h.alice, "there")
	require.NoError(t, err)
	assert.Equal(t, 2, bobCache.Unread(h.convID))

	_, err = h.msgs.MarkMessageSeen(ctx, hi.ID, h.convID, h.bob)
	require.NoError(t, err)
	// the receipt is pushed to alice only
	assert.Equal(t, 2, bobCache.Unread(h.convID))

	bobCache.MarkSeen(h.convID, hi.ID)
	bobCache.MarkSeen(h.convID, hi.ID)
	assert.Equal(t, h.serverCounts(t, h.bob), bobCache.UnreadCounts())
	assert.Equal(t, map[uuid.UUID]int{h.convID: 1}, bobCache.UnreadCounts())
	assert.Empty(t, bobCache.StaleRooms())

	_, err = h.msgs.MarkMessageSeen(ctx, second.ID, h.convID, h.bob)
	require.NoError(t, err)
	bobCache.MarkSeen(h.convID, second.ID)
	assert.Empty(t, h.serverCounts(t, h.bob))
	assert.Empty(t, bobCache.UnreadCounts())
}

func TestMarkSeen_UntrackedMessageMarksStale(t *testing.T) {
	self, room := uuid.New(), uuid.New()
	c := New(self)
	c.Reconcile([]RoomState{{ConversationID: room, Unread: 2}})

	c.MarkSeen(room, uuid.New())
	assert.Equal(t, 2, c.Unread(room))
	assert.Equal(t, []uuid.UUID{room}, c.StaleRooms())

	c.SetUnread(room, 1)
	assert.Empty(t, c.StaleRooms())

	// unknown rooms are ignored
	c.MarkSeen(uuid.New(), uuid.New())
	assert.Len(t, c.Rooms(), 1)
}

// Readers apply their own reads locally, the way a client does after calling
// the read endpoints, and the cache must then match the server aggregate.
func TestCache_AgreesWithServerAggregate(t *testing.T) {
	ctx := context.Background()
	h := newCacheHarness(t)
	alice, bob, convID := h.alice, h.bob, h.convID
	caches, msgs := h.caches, h.msgs

	rng := rand.New(rand.NewSource(42))
	users := []uuid.UUID{alice, bob}
	var sent []message.Message
	for i := 0; i < 200; i++ {
		who := users[rng.Intn(2)]
		switch op := rng.Intn(10); {
		case op < 6:
			m, err := msgs.SendMessage(ctx, convID, who, "m")
			require.NoError(t, err)
			sent = append(sent, m)
		case op < 8 && len(sent) > 0:
			m := sent[rng.Intn(len(sent))]
			_, err := msgs.MarkMessageSeen(ctx, m.ID, convID, who)
			require.NoError(t, err)
			if m.SenderID != who {
				caches[who].MarkSeen(convID, m.ID)
			}
		case op < 9:
			_, err := msgs.MarkConversationRead(ctx, convID, who)
			require.NoError(t, err)
			caches[who].MarkRead(convID)
		case len(sent) > 0:
			m := sent[rng.Intn(len(sent))]
			if m.SenderID == who {
				_, err := msgs.DeleteMessage(ctx, who, m.ID, nil)
				require.NoError(t, err)
			}
		}
	}

	for _, u := range users {
		assert.Equal(t, h.serverCounts(t, u), caches[u].UnreadCounts(), "user %s", u)
		assert.Empty(t, caches[u].StaleRooms())
	}
}
