package events

import (
	"context"
	"fmt"
	"time"

	"agora-chat/internal/metrics"
	"agora-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSBroker publishes on chat.user.<id>. Every node subscribes to the
// wildcard without a queue group so each node sees every frame and keeps
// only the ones for sockets it holds.
type NATSBroker struct {
	conn   *nats.Conn
	logger *logger.Logger
}

func NewNATSBroker(cfg NATSConfig, l *logger.Logger) (*NATSBroker, error) {
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	opts := []nats.Option{
		nats.Name("agora-chat"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			l.Logger.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			l.Logger.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return &NATSBroker{conn: conn, logger: l}, nil
}

func (b *NATSBroker) Name() string { return "nats" }

func (b *NATSBroker) Publish(_ context.Context, recipient uuid.UUID, payload []byte) error {
	if err := b.conn.Publish(UserSubject(recipient), payload); err != nil {
		return fmt.Errorf("nats publish to %s: %w", recipient, err)
	}
	metrics.BrokerMessages.WithLabelValues(b.Name(), "out").Inc()
	return nil
}

// Run relies on NATS invoking a subscription's callback from one goroutine,
// which keeps per-publisher order intact.
func (b *NATSBroker) Run(ctx context.Context, handler Handler) error {
	sub, err := b.conn.Subscribe(UserSubjectAll, func(msg *nats.Msg) {
		recipient, ok := ParseUserSubject(msg.Subject)
		if !ok {
			b.logger.Logger.Warn("nats broker: unexpected subject", zap.String("subject", msg.Subject))
			return
		}
		metrics.BrokerMessages.WithLabelValues(b.Name(), "in").Inc()
		handler(recipient, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	return sub.Unsubscribe()
}

func (b *NATSBroker) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

func (b *NATSBroker) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
