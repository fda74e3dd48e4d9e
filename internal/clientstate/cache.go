// Package clientstate holds the per-session view a connected client keeps of
// its rooms. The server aggregate is authoritative; pushes only move the
// cache forward between reconciliations.
package clientstate

import (
	"sort"
	"sync"
	"time"

	"agora-chat/internal/domain/message"
	"agora-chat/pkg/events"

	"github.com/google/uuid"
)

type Room struct {
	ConversationID uuid.UUID
	LastActivity   time.Time
	LastMessage    *events.Message
	Unread         int
	// Stale is set when a push could not be applied exactly and the count
	// should be refreshed from the server.
	Stale  bool
	Typing []uuid.UUID
}

// RoomState is one entry of the server snapshot used by Reconcile.
type RoomState struct {
	ConversationID uuid.UUID
	LastActivity   time.Time
	LastMessage    *events.Message
	Unread         int
}

type roomEntry struct {
	Room
	unreadIDs map[uuid.UUID]struct{}
	typing    map[uuid.UUID]struct{}
}

// Cache is safe for concurrent use. Create one per connection and drop it on
// disconnect.
type Cache struct {
	mu    sync.RWMutex
	self  uuid.UUID
	rooms map[uuid.UUID]*roomEntry
}

func New(self uuid.UUID) *Cache {
	return &Cache{self: self, rooms: make(map[uuid.UUID]*roomEntry)}
}

func (c *Cache) Self() uuid.UUID {
	return c.self
}

// Reconcile replaces every room with the server snapshot.
func (c *Cache) Reconcile(snapshot []RoomState) {
	rooms := make(map[uuid.UUID]*roomEntry, len(snapshot))
	for _, s := range snapshot {
		rooms[s.ConversationID] = &roomEntry{
			Room: Room{
				ConversationID: s.ConversationID,
				LastActivity:   s.LastActivity,
				LastMessage:    s.LastMessage,
				Unread:         s.Unread,
			},
			unreadIDs: make(map[uuid.UUID]struct{}),
			typing:    make(map[uuid.UUID]struct{}),
		}
	}

	c.mu.Lock()
	c.rooms = rooms
	c.mu.Unlock()
}

// SetUnread overwrites one room's count, typically after refreshing a stale room.
func (c *Cache) SetUnread(conversationID uuid.UUID, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.roomLocked(conversationID)
	r.Unread = n
	r.Stale = false
	r.unreadIDs = make(map[uuid.UUID]struct{})
}

// MarkRead zeroes a room locally after the client read it.
func (c *Cache) MarkRead(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[conversationID]; ok {
		r.Unread = 0
		r.unreadIDs = make(map[uuid.UUID]struct{})
	}
}

// MarkSeen drops one message from a room's count after the client marked it
// seen. The server only tells the sender about single receipts.
func (c *Cache) MarkSeen(conversationID, messageID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[conversationID]; ok {
		r.forgetLocked(messageID)
	}
}

// Apply folds one server push into the cache. Unknown event types are ignored.
func (c *Cache) Apply(ev events.Event) error {
	switch ev.Type {
	case events.TypeMessageReceived:
		var p events.MessageReceivedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		c.applyMessage(p)
	case events.TypeConversationRead:
		var p events.ConversationReadPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if p.ReaderID == c.self {
			c.MarkRead(p.ConversationID)
		}
	case events.TypeMessageSeen:
		var p events.MessageSeenPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if p.SeenBy == c.self {
			c.MarkSeen(p.ConversationID, p.MessageID)
		}
	case events.TypeMessageDeleted:
		var p events.MessageDeletedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		c.applyDelete(p)
	case events.TypeTyping:
		var p events.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		c.applyTyping(p)
	}
	return nil
}

func (c *Cache) applyMessage(p events.MessageReceivedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roomID := p.RoomID
	if roomID == uuid.Nil {
		roomID = p.Message.ConversationID
	}
	r := c.roomLocked(roomID)
	msg := p.Message
	if r.LastMessage == nil || msg.Seq >= r.LastMessage.Seq {
		r.LastMessage = &msg
	}
	if msg.CreatedAt.After(r.LastActivity) {
		r.LastActivity = msg.CreatedAt
	}
	delete(r.typing, msg.SenderID)

	if msg.SenderID == c.self || msg.Deleted || containsID(msg.ReadBy, c.self) {
		return
	}
	if _, seen := r.unreadIDs[msg.ID]; seen {
		return
	}
	r.unreadIDs[msg.ID] = struct{}{}
	r.Unread++
}

func (c *Cache) applyDelete(p events.MessageDeletedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[p.ConversationID]
	if !ok {
		return
	}
	if r.LastMessage != nil && r.LastMessage.ID == p.MessageID {
		redacted := *r.LastMessage
		redacted.Deleted = true
		redacted.Content = message.DeletedPlaceholder
		r.LastMessage = &redacted
	}
	r.forgetLocked(p.MessageID)
}

// forgetLocked drops one unread message. An untracked id may still have been
// counted by the last snapshot, in which case the room is flagged stale.
func (r *roomEntry) forgetLocked(messageID uuid.UUID) {
	if _, known := r.unreadIDs[messageID]; known {
		delete(r.unreadIDs, messageID)
		r.Unread--
		return
	}
	if r.Unread > len(r.unreadIDs) {
		r.Stale = true
	}
}

func (c *Cache) applyTyping(p events.TypingPayload) {
	if p.UserID == c.self {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.roomLocked(p.ConversationID)
	if p.IsTyping {
		r.typing[p.UserID] = struct{}{}
	} else {
		delete(r.typing, p.UserID)
	}
}

func (c *Cache) roomLocked(id uuid.UUID) *roomEntry {
	r, ok := c.rooms[id]
	if !ok {
		r = &roomEntry{
			Room:      Room{ConversationID: id},
			unreadIDs: make(map[uuid.UUID]struct{}),
			typing:    make(map[uuid.UUID]struct{}),
		}
		c.rooms[id] = r
	}
	return r
}

// Rooms returns a copy of every room, most recent activity first.
func (c *Cache) Rooms() []Room {
	c.mu.RLock()
	out := make([]Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r.snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ConversationID.String() < out[j].ConversationID.String()
	})
	return out
}

func (c *Cache) Room(id uuid.UUID) (Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[id]
	if !ok {
		return Room{}, false
	}
	return r.snapshot(), true
}

func (c *Cache) Unread(id uuid.UUID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.rooms[id]; ok {
		return r.Unread
	}
	return 0
}

// UnreadCounts mirrors the server aggregate: rooms with zero are omitted.
func (c *Cache) UnreadCounts() map[uuid.UUID]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for id, r := range c.rooms {
		if r.Unread > 0 {
			counts[id] = r.Unread
		}
	}
	return counts
}

func (c *Cache) StaleRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var stale []uuid.UUID
	for id, r := range c.rooms {
		if r.Stale {
			stale = append(stale, id)
		}
	}
	return stale
}

// RoomIDs lists every known room, e.g. to rejoin after a reconnect.
func (c *Cache) RoomIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (r *roomEntry) snapshot() Room {
	out := r.Room
	if r.LastMessage != nil {
		last := *r.LastMessage
		out.LastMessage = &last
	}
	out.Typing = make([]uuid.UUID, 0, len(r.typing))
	for id := range r.typing {
		out.Typing = append(out.Typing, id)
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
