package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"agora-chat/pkg/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
	maxRoomsPerReq = 500
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}

	errIdentityMismatch = errors.New("register user_id does not match the authenticated user")
)

// Presence is the cross-node connection registry. PresenceStore in
// internal/redis implements it.
type Presence interface {
	Connected(ctx context.Context, userID uuid.UUID, clientID string) error
	Disconnected(ctx context.Context, userID uuid.UUID, clientID string) (int64, error)
	Heartbeat(ctx context.Context, userID uuid.UUID) error
}

// Client is one authenticated socket. It receives pushes only after the peer
// sends register; rooms are only used for typing fan-out.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	userID      uuid.UUID
	clientID    string
	rooms       map[uuid.UUID]struct{} // owned by the hub goroutine
	authorizer  *ChannelAuthorizer
	presence    Presence
	rateLimiter *ClientRateLimiter
	logger      *WebSocketLogger
	registered  bool // owned by readPump
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	closed      int32
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, authorizer *ChannelAuthorizer, presence Presence, logger *WebSocketLogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		userID:      userID,
		clientID:    uuid.New().String(),
		rooms:       make(map[uuid.UUID]struct{}),
		authorizer:  authorizer,
		presence:    presence,
		rateLimiter: NewClientRateLimiter(DefaultRateLimits),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs both pumps and returns immediately.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// close stops the write pump; the read pump exits when the socket closes.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closed, 1)
		c.cancel()
	})
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) readPump() {
	defer func() {
		if c.registered {
			c.hub.enqueue(c.hub.unregister, c)
			c.trackDisconnect()
		}
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.registered && c.presence != nil {
			if err := c.presence.Heartbeat(c.ctx, c.userID); err != nil {
				c.logger.Warn("presence heartbeat failed", c.userID, c.clientID, zap.Error(err))
			}
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			return
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		if err := c.handleMessage(message); err != nil {
			c.logger.Warn("closing client", c.userID, c.clientID, zap.Error(err))
			return
		}
	}
}

// handleMessage returns an error only when the socket must be closed.
func (c *Client) handleMessage(raw []byte) error {
	var ev events.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.sendError("bad_request", "malformed frame")
		return nil
	}

	switch ev.Type {
	case events.TypeRegister:
		return c.handleRegister(ev)
	case events.TypePing:
		if c.rateLimiter.Allow("ping") {
			c.reply(events.TypePong, nil)
		}
		return nil
	}

	if !c.registered {
		c.sendError("not_registered", "send register first")
		return nil
	}

	switch ev.Type {
	case events.TypeJoinRooms, events.TypeLeaveRooms:
		if !c.rateLimiter.Allow("rooms") {
			c.sendError("rate_limited", "too many room requests")
			return nil
		}
		c.handleRooms(ev)
	case events.TypeTypingStart, events.TypeTypingStop:
		if !c.rateLimiter.Allow("typing") {
			return nil
		}
		c.handleTyping(ev)
	default:
		c.sendError("unknown_event", "unsupported event type "+ev.Type)
	}
	return nil
}

func (c *Client) handleRegister(ev events.Event) error {
	var p events.RegisterPayload
	if err := ev.Decode(&p); err != nil {
		c.sendError("bad_request", "register needs user_id")
		return nil
	}
	if p.UserID != c.userID {
		c.sendError("forbidden", errIdentityMismatch.Error())
		return errIdentityMismatch
	}

	first := !c.registered
	c.registered = true
	c.hub.enqueue(c.hub.register, c)
	if first && c.presence != nil {
		if err := c.presence.Connected(c.ctx, c.userID, c.clientID); err != nil {
			c.logger.Warn("presence connect failed", c.userID, c.clientID, zap.Error(err))
		}
	}
	return nil
}

func (c *Client) handleRooms(ev events.Event) {
	var p events.RoomsPayload
	if err := ev.Decode(&p); err != nil {
		c.sendError("bad_request", "conversation_ids required")
		return
	}
	if len(p.ConversationIDs) > maxRoomsPerReq {
		c.sendError("bad_request", "too many rooms in one request")
		return
	}

	if ev.Type == events.TypeLeaveRooms {
		select {
		case c.hub.roomOps <- roomOp{client: c, rooms: p.ConversationIDs, join: false}:
		case <-c.ctx.Done():
		}
		return
	}

	joined, rejected, err := c.authorizer.FilterRooms(c.ctx, c.userID, p.ConversationIDs)
	if err != nil {
		c.logger.Error("room authorization failed", c.userID, c.clientID, err)
		c.sendError("unavailable", "could not verify membership")
		return
	}
	ack, err := events.Encode(events.TypeRoomsJoined, events.RoomsJoinedPayload{Joined: joined, Rejected: rejected})
	if err != nil {
		return
	}
	select {
	case c.hub.roomOps <- roomOp{client: c, rooms: joined, join: true, ack: ack}:
	case <-c.ctx.Done():
	}
}

func (c *Client) handleTyping(ev events.Event) {
	var p events.TypingRequest
	if err := ev.Decode(&p); err != nil || p.ConversationID == uuid.Nil {
		c.sendError("bad_request", "conversation_id required")
		return
	}
	payload, err := events.Encode(events.TypeTyping, events.TypingPayload{
		ConversationID: p.ConversationID,
		UserID:         c.userID,
		IsTyping:       ev.Type == events.TypeTypingStart,
	})
	if err != nil {
		return
	}
	select {
	case c.hub.roomcast <- roomcast{roomID: p.ConversationID, from: c, payload: payload}:
	case <-c.ctx.Done():
	}
}

func (c *Client) reply(eventType string, payload interface{}) {
	frame, err := events.Encode(eventType, payload)
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("reply dropped, send buffer full", c.userID, c.clientID, zap.String("type", eventType))
	}
}

func (c *Client) sendError(code, msg string) {
	c.reply(events.TypeError, events.ErrorPayload{Code: code, Message: msg})
}

func (c *Client) trackDisconnect() {
	if c.presence == nil {
		return
	}
	// the client context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.presence.Disconnected(ctx, c.userID, c.clientID); err != nil {
		c.logger.Warn("presence disconnect failed", c.userID, c.clientID, zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// frames queued meanwhile share this websocket message, newline separated
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
