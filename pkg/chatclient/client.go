// Package chatclient is a small realtime client for the gateway. It registers,
// joins rooms and keeps a clientstate.Cache current from server pushes.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agora-chat/internal/clientstate"
	"agora-chat/pkg/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("chatclient: connection closed")

type Client struct {
	conn    *websocket.Conn
	userID  uuid.UUID
	cache   *clientstate.Cache
	events  chan events.Event
	acks    chan events.Event
	writeMu sync.Mutex
	done    chan struct{}
	err     error
	once    sync.Once
}

// Dial connects to wsURL (ws://host/ws), authenticates with token and sends
// register. It returns once the server acknowledged the registration.
func Dial(ctx context.Context, wsURL, token string, userID uuid.UUID) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		conn:   conn,
		userID: userID,
		cache:  clientstate.New(userID),
		events: make(chan events.Event, 256),
		acks:   make(chan events.Event, 8),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	if err := c.send(events.TypeRegister, events.RegisterPayload{UserID: userID}); err != nil {
		c.Close()
		return nil, err
	}
	if _, err := c.await(ctx, events.TypeRegistered); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Cache() *clientstate.Cache {
	return c.cache
}

// Events yields every push after it has been applied to the cache. Frames
// are dropped when the channel is full; the cache never misses one.
func (c *Client) Events() <-chan events.Event {
	return c.events
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// JoinRooms asks to join rooms and returns the server's verdict.
func (c *Client) JoinRooms(ctx context.Context, conversationIDs []uuid.UUID) (events.RoomsJoinedPayload, error) {
	var out events.RoomsJoinedPayload
	if err := c.send(events.TypeJoinRooms, events.RoomsPayload{ConversationIDs: conversationIDs}); err != nil {
		return out, err
	}
	ev, err := c.await(ctx, events.TypeRoomsJoined)
	if err != nil {
		return out, err
	}
	err = ev.Decode(&out)
	return out, err
}

func (c *Client) LeaveRooms(conversationIDs []uuid.UUID) error {
	return c.send(events.TypeLeaveRooms, events.RoomsPayload{ConversationIDs: conversationIDs})
}

func (c *Client) Typing(conversationID uuid.UUID, typing bool) error {
	eventType := events.TypeTypingStop
	if typing {
		eventType = events.TypeTypingStart
	}
	return c.send(eventType, events.TypingRequest{ConversationID: conversationID})
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.send(events.TypePing, nil); err != nil {
		return err
	}
	_, err := c.await(ctx, events.TypePong)
	return err
}

// Next returns the next push of eventType, discarding others.
func (c *Client) Next(ctx context.Context, eventType string) (events.Event, error) {
	for {
		select {
		case ev := <-c.events:
			if ev.Type == eventType {
				return ev, nil
			}
		case <-c.done:
			return events.Event{}, c.closeErr()
		case <-ctx.Done():
			return events.Event{}, ctx.Err()
		}
	}
}

func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(eventType string, payload interface{}) error {
	frame, err := events.Encode(eventType, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return c.closeErr()
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// await waits for a reply frame. Replies are consumed in arrival order, so
// requests of the same kind must not overlap.
func (c *Client) await(ctx context.Context, eventType string) (events.Event, error) {
	for {
		select {
		case ev := <-c.acks:
			if ev.Type == events.TypeError {
				var p events.ErrorPayload
				_ = ev.Decode(&p)
				return ev, fmt.Errorf("gateway error %s: %s", p.Code, p.Message)
			}
			if ev.Type == eventType {
				return ev, nil
			}
		case <-c.done:
			return events.Event{}, c.closeErr()
		case <-ctx.Done():
			return events.Event{}, ctx.Err()
		}
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		// the gateway batches queued frames into one message, newline separated
		for _, raw := range bytes.Split(data, []byte{'\n'}) {
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			c.dispatch(ev)
		}
	}
}

func (c *Client) dispatch(ev events.Event) {
	switch ev.Type {
	case events.TypeRegistered, events.TypeRoomsJoined, events.TypePong, events.TypeError:
		select {
		case c.acks <- ev:
		default:
		}
		return
	}

	_ = c.cache.Apply(ev)
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Client) closeErr() error {
	if c.err == nil || errors.Is(c.err, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, c.err)
}
