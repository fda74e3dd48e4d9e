// Package events defines the realtime wire protocol shared by the gateway and
// its clients. Every frame is a JSON Event; payload shapes depend on Type.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client to server
const (
	TypeRegister    = "register"
	TypeJoinRooms   = "join-rooms"
	TypeLeaveRooms  = "leave-rooms"
	TypeTypingStart = "typing:start"
	TypeTypingStop  = "typing:stop"
	TypePing        = "ping"
)

// Server to client
const (
	TypeRegistered       = "registered"
	TypeRoomsJoined      = "rooms-joined"
	TypeMessageReceived  = "message-received"
	TypeMessageSeen      = "message-seen"
	TypeMessageDeleted   = "message-deleted"
	TypeConversationRead = "conversation-read"
	TypeTyping           = "typing"
	TypePong             = "pong"
	TypeError            = "error"
)

type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New wraps payload into an Event stamped with the current time in milliseconds.
func New(eventType string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	ev.Payload = raw
	return ev, nil
}

// Encode is New followed by json.Marshal of the whole frame.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	ev, err := New(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Seq            int64       `json:"seq"`
	SenderID       uuid.UUID   `json:"sender_id"`
	Content        string      `json:"content"`
	Deleted        bool        `json:"deleted"`
	ReadBy         []uuid.UUID `json:"read_by"`
	CreatedAt      time.Time   `json:"created_at"`
}

type RegisterPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type RoomsPayload struct {
	ConversationIDs []uuid.UUID `json:"conversation_ids"`
}

type RoomsJoinedPayload struct {
	Joined   []uuid.UUID `json:"joined"`
	Rejected []uuid.UUID `json:"rejected,omitempty"`
}

type TypingRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
}

type MessageReceivedPayload struct {
	RoomID  uuid.UUID `json:"room_id"`
	Message Message   `json:"message"`
}

type MessageSeenPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SeenBy         uuid.UUID `json:"seen_by"`
}

type MessageDeletedPayload struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type ConversationReadPayload struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	ReaderID       uuid.UUID   `json:"reader_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
