package events

import (
	"context"

	"github.com/google/uuid"
)

// Handler receives one encoded frame for one recipient. Brokers call it from a
// single goroutine, in the order frames were published.
type Handler func(recipient uuid.UUID, payload []byte)

// Broker fans pushes out to whichever gateway node holds the recipient's socket.
type Broker interface {
	Name() string
	Publish(ctx context.Context, recipient uuid.UUID, payload []byte) error
	// Run delivers frames to handler until ctx is cancelled.
	Run(ctx context.Context, handler Handler) error
	Close() error
}
