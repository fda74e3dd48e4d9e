package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Per-minute budgets for inbound client frames.
type RateLimits struct {
	MaxTypingEvents int
	MaxRoomRequests int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents: 60,
	MaxRoomRequests: 30,
	MaxPingMessages: 60,
}

// ClientRateLimiter is a per-socket token bucket refilled once a minute.
type ClientRateLimiter struct {
	limits       RateLimits
	typingTokens int
	roomTokens   int
	pingTokens   int
	lastRefill   time.Time
	mu           sync.Mutex
}

func NewClientRateLimiter(limits RateLimits) *ClientRateLimiter {
	rl := &ClientRateLimiter{limits: limits, lastRefill: time.Now()}
	rl.refillTokens()
	return rl
}

func (rl *ClientRateLimiter) Allow(kind string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.refillTokens()
		rl.lastRefill = now
	}

	var tokens *int
	switch kind {
	case "typing":
		tokens = &rl.typingTokens
	case "rooms":
		tokens = &rl.roomTokens
	case "ping":
		tokens = &rl.pingTokens
	default:
		return true
	}
	if *tokens <= 0 {
		return false
	}
	*tokens--
	return true
}

func (rl *ClientRateLimiter) refillTokens() {
	rl.typingTokens = rl.limits.MaxTypingEvents
	rl.roomTokens = rl.limits.MaxRoomRequests
	rl.pingTokens = rl.limits.MaxPingMessages
}

// WebSocketRateLimiter caps how often one user may open a socket.
type WebSocketRateLimiter struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	maxPerMinute       int
	mu                 sync.Mutex
}

func NewWebSocketRateLimiter(maxPerMinute int) *WebSocketRateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 10
	}
	return &WebSocketRateLimiter{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
		maxPerMinute:       maxPerMinute,
	}
}

func (w *WebSocketRateLimiter) AllowConnection(userID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Minute)

	valid := make([]time.Time, 0, len(w.connectionsPerUser[userID])+1)
	for _, t := range w.connectionsPerUser[userID] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= w.maxPerMinute {
		w.connectionsPerUser[userID] = valid
		return false
	}
	w.connectionsPerUser[userID] = append(valid, now)
	return true
}

// Cleanup forgets users with no connection attempts in the last minute.
func (w *WebSocketRateLimiter) Cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	for userID, times := range w.connectionsPerUser {
		n := 0
		for _, t := range times {
			if t.After(cutoff) {
				times[n] = t
				n++
			}
		}
		if n == 0 {
			delete(w.connectionsPerUser, userID)
		} else {
			w.connectionsPerUser[userID] = times[:n]
		}
	}
}
