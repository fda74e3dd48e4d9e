package events

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryPubSub stands in for Redis Pub/Sub.
type memoryPubSub struct {
	ch      chan [2]string
	failing bool
}

func (m *memoryPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	if m.failing {
		return errors.New("connection refused")
	}
	m.ch <- [2]string{channel, string(payload)}
	return nil
}

func (m *memoryPubSub) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	if len(channels) != 1 || channels[0] != UserChannelAll {
		return errors.New("unexpected pattern")
	}
	for {
		select {
		case msg := <-m.ch:
			handler(msg[0], []byte(msg[1]))
		case <-ctx.Done():
			return nil
		}
	}
}

type delivered struct {
	recipient uuid.UUID
	payload   string
}

func TestRedisBroker_RoutesByRecipient(t *testing.T) {
	ps := &memoryPubSub{ch: make(chan [2]string, 8)}
	broker := NewRedisBroker(ps, ps, logger.NewNop())
	assert.Equal(t, "redis", broker.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan delivered, 8)
	go func() {
		_ = broker.Run(ctx, func(recipient uuid.UUID, payload []byte) {
			got <- delivered{recipient, string(payload)}
		})
	}()

	// frames on foreign channels are dropped
	ps.ch <- [2]string{"channel:user:garbage", "x"}

	first, second := uuid.New(), uuid.New()
	require.NoError(t, broker.Publish(ctx, first, []byte("a")))
	require.NoError(t, broker.Publish(ctx, second, []byte("b")))

	for _, want := range []delivered{{first, "a"}, {second, "b"}} {
		select {
		case d := <-got:
			assert.Equal(t, want, d)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not delivered")
		}
	}
	assert.NoError(t, broker.Close())
}

func TestRedisBroker_PublishError(t *testing.T) {
	ps := &memoryPubSub{ch: make(chan [2]string, 1), failing: true}
	broker := NewRedisBroker(ps, ps, logger.NewNop())

	err := broker.Publish(context.Background(), uuid.New(), []byte("a"))
	assert.ErrorContains(t, err, "connection refused")
}

// Runs against a real server when TEST_NATS_URL is set.
func TestNATSBroker_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}
	broker, err := NewNATSBroker(NATSConfig{URL: url}, logger.NewNop())
	require.NoError(t, err)
	defer broker.Close()
	assert.True(t, broker.IsConnected())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan delivered, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = broker.Run(ctx, func(recipient uuid.UUID, payload []byte) {
			select {
			case got <- delivered{recipient, string(payload)}:
			default:
			}
		})
	}()
	<-ready

	recipient := uuid.New()
	require.Eventually(t, func() bool {
		if err := broker.Publish(ctx, recipient, []byte("hello")); err != nil {
			return false
		}
		select {
		case d := <-got:
			return d == delivered{recipient, "hello"}
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
