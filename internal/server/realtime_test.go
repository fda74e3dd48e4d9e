package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agora-chat/pkg/chatclient"
	"agora-chat/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) dial(t *testing.T, ts *httptest.Server, userID uuid.UUID) *chatclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := chatclient.Dial(ctx, wsURL(ts), e.token(t, userID), userID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRealtimePushes(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.engine)
	defer ts.Close()

	conv := e.startDirect(t, e.alice, e.bob)
	convID := uuid.MustParse(conv.ID)

	alice := e.dial(t, ts, e.alice)
	bob := e.dial(t, ts, e.bob)
	require.Eventually(t, func() bool { return e.hub.ConnectionCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	sent := e.sendMessage(t, conv.ID, e.alice, "hi bob")

	ev, err := bob.Next(waitCtx(t), events.TypeMessageReceived)
	require.NoError(t, err)
	var received events.MessageReceivedPayload
	require.NoError(t, ev.Decode(&received))
	assert.Equal(t, convID, received.RoomID)
	assert.Equal(t, sent.ID, received.Message.ID.String())
	assert.Equal(t, "hi bob", received.Message.Content)
	assert.Equal(t, e.alice, received.Message.SenderID)

	// the cache agrees with the server aggregate
	assert.Equal(t, 1, bob.Cache().Unread(convID))
	w, env := e.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/unread", e.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conversation_id":"`+conv.ID+`","count":1}`, string(env.Data))

	w, _ = e.do(t, http.MethodPost, "/v1/messages/"+sent.ID+"/seen", e.bob, map[string]string{"conversation_id": conv.ID})
	require.Equal(t, http.StatusOK, w.Code)

	ev, err = alice.Next(waitCtx(t), events.TypeMessageSeen)
	require.NoError(t, err)
	var seen events.MessageSeenPayload
	require.NoError(t, ev.Decode(&seen))
	assert.Equal(t, e.bob, seen.SeenBy)
	assert.Equal(t, sent.ID, seen.MessageID.String())

	second := e.sendMessage(t, conv.ID, e.alice, "again")
	_, err = bob.Next(waitCtx(t), events.TypeMessageReceived)
	require.NoError(t, err)

	w, _ = e.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/read", e.bob, nil)
	require.Equal(t, http.StatusOK, w.Code)

	ev, err = alice.Next(waitCtx(t), events.TypeConversationRead)
	require.NoError(t, err)
	var read events.ConversationReadPayload
	require.NoError(t, ev.Decode(&read))
	assert.Equal(t, e.bob, read.ReaderID)
	assert.Equal(t, []uuid.UUID{uuid.MustParse(second.ID)}, read.MessageIDs)

	w, _ = e.do(t, http.MethodDelete, "/v1/messages/"+second.ID, e.alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	ev, err = bob.Next(waitCtx(t), events.TypeMessageDeleted)
	require.NoError(t, err)
	var deleted events.MessageDeletedPayload
	require.NoError(t, ev.Decode(&deleted))
	assert.Equal(t, second.ID, deleted.MessageID.String())
	assert.Equal(t, convID, deleted.ConversationID)
}

func TestRealtimeRoomsAndTyping(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.engine)
	defer ts.Close()

	conv := e.startDirect(t, e.alice, e.bob)
	convID := uuid.MustParse(conv.ID)
	foreign := uuid.MustParse(e.startDirect(t, e.carol, e.bob).ID)

	alice := e.dial(t, ts, e.alice)
	bob := e.dial(t, ts, e.bob)

	res, err := alice.JoinRooms(waitCtx(t), []uuid.UUID{convID, foreign, convID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{convID}, res.Joined)
	assert.Equal(t, []uuid.UUID{foreign}, res.Rejected)

	res, err = bob.JoinRooms(waitCtx(t), []uuid.UUID{convID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{convID}, res.Joined)
	assert.ElementsMatch(t, []uuid.UUID{e.alice, e.bob}, e.hub.RoomMembers(convID))

	require.NoError(t, alice.Typing(convID, true))
	ev, err := bob.Next(waitCtx(t), events.TypeTyping)
	require.NoError(t, err)
	var typing events.TypingPayload
	require.NoError(t, ev.Decode(&typing))
	assert.Equal(t, e.alice, typing.UserID)
	assert.True(t, typing.IsTyping)
	room, ok := bob.Cache().Room(convID)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{e.alice}, room.Typing)

	// typing into a room the sender never joined goes nowhere
	require.NoError(t, alice.Typing(foreign, true))
	require.NoError(t, alice.Ping(waitCtx(t)))

	require.NoError(t, bob.LeaveRooms([]uuid.UUID{convID}))
	require.Eventually(t, func() bool {
		return len(e.hub.RoomMembers(convID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeNewSocketReplacesOld(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.engine)
	defer ts.Close()

	conv := e.startDirect(t, e.alice, e.bob)
	first := e.dial(t, ts, e.bob)
	second := e.dial(t, ts, e.bob)

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replaced socket was not closed")
	}
	assert.Equal(t, 1, e.hub.ConnectionCount())

	e.sendMessage(t, conv.ID, e.alice, "to the new socket")
	ev, err := second.Next(waitCtx(t), events.TypeMessageReceived)
	require.NoError(t, err)
	var received events.MessageReceivedPayload
	require.NoError(t, ev.Decode(&received))
	assert.Equal(t, "to the new socket", received.Message.Content)
}

func TestRealtimeRejectsBadHandshake(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.engine)
	defer ts.Close()

	ctx := waitCtx(t)
	_, err := chatclient.Dial(ctx, wsURL(ts), "garbage", e.alice)
	assert.Error(t, err)

	// a token for alice cannot register as bob
	_, err = chatclient.Dial(ctx, wsURL(ts), e.token(t, e.alice), e.bob)
	assert.Error(t, err)
	assert.Zero(t, e.hub.ConnectionCount())
}
