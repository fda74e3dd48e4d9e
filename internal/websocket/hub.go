package websocket

import (
	"context"
	"sync"
	"time"

	"agora-chat/internal/metrics"
	"agora-chat/pkg/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type delivery struct {
	userID  uuid.UUID
	payload []byte
}

type roomcast struct {
	roomID  uuid.UUID
	from    *Client
	payload []byte
}

type roomOp struct {
	client *Client
	rooms  []uuid.UUID
	join   bool
	ack    []byte
}

// Hub owns every registered socket on this node. All map mutation happens on
// the Run goroutine, so frames queued for one user leave in the order they
// were handed to Deliver.
type Hub struct {
	clients     map[uuid.UUID]*Client
	rooms       map[uuid.UUID]map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	deliver     chan delivery
	roomcast    chan roomcast
	roomOps     chan roomOp
	rateLimiter *WebSocketRateLimiter
	logger      *WebSocketLogger
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

func NewHub(logger *WebSocketLogger) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		rooms:       make(map[uuid.UUID]map[*Client]struct{}),
		register:    make(chan *Client, 256),
		unregister:  make(chan *Client, 256),
		deliver:     make(chan delivery, 1024),
		roomcast:    make(chan roomcast, 256),
		roomOps:     make(chan roomOp, 256),
		rateLimiter: NewWebSocketRateLimiter(10),
		logger:      logger,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case d := <-h.deliver:
			h.handleDeliver(d)

		case rc := <-h.roomcast:
			h.handleRoomcast(rc)

		case op := <-h.roomOps:
			h.handleRoomOp(op)

		case <-cleanup.C:
			h.rateLimiter.Cleanup()

		case <-ctx.Done():
			h.shutdown()
			return

		case <-h.stopChan:
			h.shutdown()
			return
		}
	}
}

// Stop shuts the hub down and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	<-h.done
}

// Deliver queues an encoded frame for userID. Users without a socket on this
// node are skipped silently.
func (h *Hub) Deliver(userID uuid.UUID, payload []byte) {
	select {
	case h.deliver <- delivery{userID: userID, payload: payload}:
	case <-h.stopChan:
	case <-h.done:
	}
}

func (h *Hub) IsConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomMembers lists the users currently joined to roomID on this node.
func (h *Hub) RoomMembers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]uuid.UUID, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		members = append(members, c.userID)
	}
	return members
}

func (h *Hub) enqueue(ch chan<- *Client, c *Client) {
	select {
	case ch <- c:
	case <-h.stopChan:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.isClosed() {
		return
	}
	// one socket per user: the newest connection replaces the previous one
	if existing, ok := h.clients[client.userID]; ok && existing != client {
		h.dropLocked(existing)
		h.logger.Info("client replaced", existing.userID, existing.clientID,
			zap.String("replaced_by", client.clientID))
	}
	if _, ok := h.clients[client.userID]; !ok {
		metrics.WebSocketConnections.Inc()
	}
	h.clients[client.userID] = client

	ack, err := events.Encode(events.TypeRegistered, events.RegisterPayload{UserID: client.userID})
	if err == nil {
		h.sendLocked(client, ack)
	}
	h.logger.Info("client registered", client.userID, client.clientID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == client {
		h.dropLocked(client)
		h.logger.Info("client disconnected", client.userID, client.clientID)
		return
	}
	h.leaveAllLocked(client)
	client.close()
}

// dropLocked removes client from every index and closes it.
func (h *Hub) dropLocked(client *Client) {
	if h.clients[client.userID] == client {
		delete(h.clients, client.userID)
		metrics.WebSocketConnections.Dec()
	}
	h.leaveAllLocked(client)
	client.close()
}

func (h *Hub) leaveAllLocked(client *Client) {
	for roomID := range client.rooms {
		h.leaveLocked(client, roomID)
	}
}

func (h *Hub) leaveLocked(client *Client, roomID uuid.UUID) {
	delete(client.rooms, roomID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// sendLocked never blocks the hub: a socket that cannot keep up is dropped and
// will reconcile over HTTP when it reconnects.
func (h *Hub) sendLocked(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("client send buffer full", client.userID, client.clientID)
		h.dropLocked(client)
	}
}

func (h *Hub) handleDeliver(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[d.userID]; ok {
		h.sendLocked(client, d.payload)
	}
}

func (h *Hub) handleRoomcast(rc roomcast) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[rc.roomID]
	if !ok {
		return
	}
	if _, joined := members[rc.from]; !joined {
		return
	}
	for client := range members {
		if client == rc.from || client.userID == rc.from.userID {
			continue
		}
		h.sendLocked(client, rc.payload)
	}
}

func (h *Hub) handleRoomOp(op roomOp) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[op.client.userID] != op.client {
		return
	}
	for _, roomID := range op.rooms {
		if !op.join {
			h.leaveLocked(op.client, roomID)
			continue
		}
		members, ok := h.rooms[roomID]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[roomID] = members
		}
		members[op.client] = struct{}{}
		op.client.rooms[roomID] = struct{}{}
	}
	if op.ack != nil {
		h.sendLocked(op.client, op.ack)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.dropLocked(client)
	}
}
