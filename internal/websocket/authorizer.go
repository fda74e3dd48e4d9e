package websocket

import (
	"context"

	"github.com/google/uuid"
)

// RoomAccess is satisfied by proxy.AccessControl.
type RoomAccess interface {
	CanJoinRoom(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)
}

// ChannelAuthorizer decides which conversation rooms a socket may join.
type ChannelAuthorizer struct {
	access RoomAccess
}

func NewChannelAuthorizer(access RoomAccess) *ChannelAuthorizer {
	return &ChannelAuthorizer{access: access}
}

// FilterRooms splits the requested rooms into those userID participates in and
// the rest. Duplicates are collapsed. A store error aborts the whole request.
func (a *ChannelAuthorizer) FilterRooms(ctx context.Context, userID uuid.UUID, rooms []uuid.UUID) (joined, rejected []uuid.UUID, err error) {
	joined = make([]uuid.UUID, 0, len(rooms))
	seen := make(map[uuid.UUID]struct{}, len(rooms))
	for _, room := range rooms {
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}

		ok, err := a.access.CanJoinRoom(ctx, userID, room)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			joined = append(joined, room)
		} else {
			rejected = append(rejected, room)
		}
	}
	return joined, rejected, nil
}
