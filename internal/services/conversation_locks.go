package services

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

const lockStripes = 64

// conversationLocks serializes commit+enqueue per conversation so every
// recipient observes pushes of one conversation in commit order.
type conversationLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *conversationLocks) lock(conversationID uuid.UUID) func() {
	h := fnv.New32a()
	_, _ = h.Write(conversationID[:])
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
