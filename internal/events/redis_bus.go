package events

import (
	"context"
	"fmt"

	"agora-chat/internal/metrics"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RedisBroker rides Redis Pub/Sub: one channel per recipient, one pattern
// subscription per node.
type RedisBroker struct {
	publisher  Publisher
	subscriber Subscriber
	logger     *logger.Logger
}

func NewRedisBroker(publisher Publisher, subscriber Subscriber, l *logger.Logger) *RedisBroker {
	return &RedisBroker{publisher: publisher, subscriber: subscriber, logger: l}
}

func (b *RedisBroker) Name() string { return "redis" }

func (b *RedisBroker) Publish(ctx context.Context, recipient uuid.UUID, payload []byte) error {
	if err := b.publisher.Publish(ctx, UserChannel(recipient), payload); err != nil {
		return fmt.Errorf("redis publish to %s: %w", recipient, err)
	}
	metrics.BrokerMessages.WithLabelValues(b.Name(), "out").Inc()
	return nil
}

func (b *RedisBroker) Run(ctx context.Context, handler Handler) error {
	return b.subscriber.Subscribe(ctx, []string{UserChannelAll}, func(channel string, payload []byte) {
		recipient, ok := ParseUserChannel(channel)
		if !ok {
			b.logger.Logger.Warn("redis broker: unexpected channel", zap.String("channel", channel))
			return
		}
		metrics.BrokerMessages.WithLabelValues(b.Name(), "in").Inc()
		handler(recipient, payload)
	})
}

// Close is a no-op; the Redis client belongs to the application lifecycle.
func (b *RedisBroker) Close() error { return nil }
