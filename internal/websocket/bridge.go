package websocket

import (
	"context"

	"agora-chat/internal/events"
)

// Bridge feeds frames arriving from the broker into the local hub.
type Bridge struct {
	broker events.Broker
	hub    *Hub
}

func NewBridge(broker events.Broker, hub *Hub) *Bridge {
	return &Bridge{broker: broker, hub: hub}
}

func (b *Bridge) Run(ctx context.Context) error {
	return b.broker.Run(ctx, b.hub.Deliver)
}
