package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRateLimiter(t *testing.T) {
	rl := NewClientRateLimiter(RateLimits{MaxTypingEvents: 2, MaxRoomRequests: 1, MaxPingMessages: 1})

	assert.True(t, rl.Allow("typing"))
	assert.True(t, rl.Allow("typing"))
	assert.False(t, rl.Allow("typing"))

	assert.True(t, rl.Allow("rooms"))
	assert.False(t, rl.Allow("rooms"))

	assert.True(t, rl.Allow("ping"))
	assert.False(t, rl.Allow("ping"))

	assert.True(t, rl.Allow("anything-else"))
}

func TestWebSocketRateLimiter(t *testing.T) {
	rl := NewWebSocketRateLimiter(2)
	a, b := uuid.New(), uuid.New()

	assert.True(t, rl.AllowConnection(a))
	assert.True(t, rl.AllowConnection(a))
	assert.False(t, rl.AllowConnection(a))
	assert.True(t, rl.AllowConnection(b))

	rl.Cleanup()
	assert.Len(t, rl.connectionsPerUser, 2)
}

type roomAccessFunc func(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)

func (f roomAccessFunc) CanJoinRoom(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	return f(ctx, userID, conversationID)
}

func TestChannelAuthorizer_FilterRooms(t *testing.T) {
	allowed, denied := uuid.New(), uuid.New()
	calls := 0
	auth := NewChannelAuthorizer(roomAccessFunc(func(_ context.Context, _, conv uuid.UUID) (bool, error) {
		calls++
		return conv == allowed, nil
	}))

	joined, rejected, err := auth.FilterRooms(context.Background(), uuid.New(), []uuid.UUID{allowed, denied, allowed})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{allowed}, joined)
	assert.Equal(t, []uuid.UUID{denied}, rejected)
	assert.Equal(t, 2, calls)
}

func TestChannelAuthorizer_StoreErrorAbortsRequest(t *testing.T) {
	auth := NewChannelAuthorizer(roomAccessFunc(func(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
		return false, errors.New("db down")
	}))

	joined, rejected, err := auth.FilterRooms(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	assert.Error(t, err)
	assert.Nil(t, joined)
	assert.Nil(t, rejected)
}
