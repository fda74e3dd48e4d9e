package websocket

import (
	"context"
	"encoding/json"

	"agora-chat/internal/domain/message"
	"agora-chat/internal/events"
	wire "agora-chat/pkg/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OnlineFilter narrows a recipient list to users holding a socket somewhere.
type OnlineFilter interface {
	OnlineAmong(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error)
}

// Gateway turns committed mutations into per-user pushes. Without a broker it
// writes straight into the local hub; with one, every frame goes through the
// broker so the node holding the socket delivers it.
type Gateway struct {
	hub    *Hub
	broker events.Broker
	online OnlineFilter
	logger *zap.Logger
}

// NewGateway accepts a nil broker for single-node deployments and a nil
// filter when presence is not tracked.
func NewGateway(hub *Hub, broker events.Broker, online OnlineFilter, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{hub: hub, broker: broker, online: online, logger: logger}
}

func (g *Gateway) MessageReceived(ctx context.Context, recipients []uuid.UUID, msg message.Message) error {
	return g.push(ctx, recipients, wire.TypeMessageReceived, wire.MessageReceivedPayload{
		RoomID:  msg.ConversationID,
		Message: WireMessage(msg),
	})
}

func (g *Gateway) MessageSeen(ctx context.Context, recipient, messageID, conversationID, seenBy uuid.UUID) error {
	return g.push(ctx, []uuid.UUID{recipient}, wire.TypeMessageSeen, wire.MessageSeenPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
		SeenBy:         seenBy,
	})
}

func (g *Gateway) MessageDeleted(ctx context.Context, recipients []uuid.UUID, messageID, conversationID uuid.UUID) error {
	return g.push(ctx, recipients, wire.TypeMessageDeleted, wire.MessageDeletedPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

func (g *Gateway) ConversationRead(ctx context.Context, recipient, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) error {
	return g.push(ctx, []uuid.UUID{recipient}, wire.TypeConversationRead, wire.ConversationReadPayload{
		ConversationID: conversationID,
		ReaderID:       readerID,
		MessageIDs:     messageIDs,
	})
}

func (g *Gateway) push(ctx context.Context, recipients []uuid.UUID, eventType string, payload interface{}) error {
	if len(recipients) == 0 {
		return nil
	}
	ev, err := wire.New(eventType, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if g.broker == nil {
		for _, r := range recipients {
			g.hub.Deliver(r, frame)
		}
		return nil
	}

	if g.online != nil {
		online, err := g.online.OnlineAmong(ctx, recipients)
		if err != nil {
			g.logger.Warn("presence lookup failed, publishing to all recipients", zap.Error(err))
		} else {
			recipients = online
		}
	}

	// each publish must be acknowledged before the caller releases its
	// conversation lock, otherwise a later event could overtake this one
	eg, egCtx := errgroup.WithContext(ctx)
	for _, r := range recipients {
		r := r
		eg.Go(func() error {
			return g.broker.Publish(egCtx, r, frame)
		})
	}
	return eg.Wait()
}

// WireMessage renders a stored message for the realtime protocol.
func WireMessage(m message.Message) wire.Message {
	m = m.Redacted()
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []uuid.UUID{}
	}
	return wire.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Deleted:        m.Deleted,
		ReadBy:         readBy,
		CreatedAt:      m.CreatedAt,
	}
}
