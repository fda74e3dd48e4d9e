package app

import (
	"context"
	"fmt"
	"time"

	"agora-chat/config"
	"agora-chat/internal/domain/user"
	"agora-chat/internal/events"
	"agora-chat/internal/handler"
	"agora-chat/internal/proxy"
	"agora-chat/internal/redis"
	"agora-chat/internal/repository"
	"agora-chat/internal/server"
	"agora-chat/internal/services"
	"agora-chat/internal/websocket"
	"agora-chat/pkg/database"
	"agora-chat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module composes the whole messaging server.
func Module() fx.Option {
	return fx.Module("agora",
		fx.Provide(
			config.LoadConfig,
			provideLogger,
			provideBackend,
			provideStore,
			provideRedis,
			provideBroker,
			providePresence,
			proxy.NewAccessControl,
			provideConversationRepo,
			services.NewAuthService,
			provideWebSocketLogger,
			websocket.NewHub,
			provideGateway,
			provideNotifier,
			services.NewConversationService,
			services.NewMessageService,
			services.NewUnreadAggregator,
			provideHandlers,
			provideServer,
		),
		fx.WithLogger(func(l *logger.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Logger.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

// Backend is the selected store plus the pool behind it, if any.
type Backend struct {
	Store *repository.Store
	Pool  *pgxpool.Pool
}

func provideLogger(cfg *config.Config) *logger.Logger {
	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	return l
}

func provideBackend(lc fx.Lifecycle, cfg *config.Config, l *logger.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repository.NewMemoryStore()
		for _, u := range database.DefaultSeedUsers() {
			mem.AddUser(user.Profile{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName})
		}
		l.Logger.Warn("using in-memory store; data is lost on restart")
		return &Backend{Store: mem.Store()}, nil

	case config.StoreDriverPostgres:
		url := cfg.DatabaseURL()
		result, err := database.MigrateUp(url)
		if err != nil {
			return nil, err
		}
		l.Logger.Info("migrations applied",
			zap.Uint("version", result.Version),
			zap.Bool("changed", result.Changed))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := database.Connect(ctx, url, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			pool.Close()
			return nil
		}})
		return &Backend{Store: repository.NewPostgresStore(pool), Pool: pool}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func provideStore(b *Backend) *repository.Store {
	return b.Store
}

func provideConversationRepo(s *repository.Store) repository.ConversationRepository {
	return s.Conversations
}

// provideRedis returns nil when neither presence nor the Redis broker is on.
func provideRedis(lc fx.Lifecycle, cfg *config.Config) (*goredis.Client, error) {
	if !cfg.RedisEnabled && cfg.Broker != config.BrokerRedis {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := redis.Connect(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return client.Close()
	}})
	return client, nil
}

func provideBroker(lc fx.Lifecycle, cfg *config.Config, rdb *goredis.Client, l *logger.Logger) (events.Broker, error) {
	var broker events.Broker
	switch cfg.Broker {
	case config.BrokerNone, "":
		return nil, nil
	case config.BrokerRedis:
		broker = events.NewRedisBroker(redis.NewPublisher(rdb), redis.NewSubscriber(rdb), l)
	case config.BrokerNATS:
		nb, err := events.NewNATSBroker(events.NATSConfig{URL: cfg.NATSURL}, l)
		if err != nil {
			return nil, err
		}
		broker = nb
	default:
		return nil, fmt.Errorf("unknown BROKER %q", cfg.Broker)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return broker.Close()
	}})
	l.Logger.Info("realtime broker enabled", zap.String("broker", broker.Name()))
	return broker, nil
}

func providePresence(cfg *config.Config, rdb *goredis.Client) *redis.PresenceStore {
	if rdb == nil {
		return nil
	}
	return redis.NewPresenceStore(rdb, time.Duration(cfg.PresenceTTLSeconds)*time.Second)
}

func provideWebSocketLogger(l *logger.Logger) *websocket.WebSocketLogger {
	return websocket.NewWebSocketLogger(l.Logger)
}

func provideGateway(hub *websocket.Hub, broker events.Broker, presence *redis.PresenceStore, l *logger.Logger) *websocket.Gateway {
	var online websocket.OnlineFilter
	if presence != nil {
		online = presence
	}
	return websocket.NewGateway(hub, broker, online, l.Logger)
}

func provideNotifier(g *websocket.Gateway) services.Notifier {
	return g
}

func provideHandlers(
	hub *websocket.Hub,
	auth *services.AuthService,
	access *proxy.AccessControl,
	presence *redis.PresenceStore,
	wsl *websocket.WebSocketLogger,
	conversations *services.ConversationService,
	messages *services.MessageService,
	unread *services.UnreadAggregator,
) *server.Handlers {
	var p websocket.Presence
	if presence != nil {
		p = presence
	}
	return &server.Handlers{
		Conversation: handler.NewConversationHandler(conversations),
		Message:      handler.NewMessageHandler(messages),
		Unread:       handler.NewUnreadHandler(unread),
		WebSocket:    websocket.NewHandler(hub, auth, websocket.NewChannelAuthorizer(access), p, wsl),
	}
}

func provideServer(cfg *config.Config, l *logger.Logger, handlers *server.Handlers, auth *services.AuthService, rdb *goredis.Client, b *Backend) *server.Server {
	srv := server.New(cfg, l)

	deps := server.Deps{Auth: auth}
	if rdb != nil {
		limits := redis.DefaultRateLimitConfig()
		if cfg.MessageRateLimit > 0 {
			limits.MessageLimit = cfg.MessageRateLimit
		}
		deps.MessageLimiter = redis.NewRateLimiter(rdb, limits)
	}
	if b.Pool != nil {
		pool := b.Pool
		deps.Health = func(ctx context.Context) error {
			return database.HealthCheck(ctx, pool)
		}
	}

	srv.SetupRoutes(handlers, deps)
	return srv
}

func registerLifecycle(lc fx.Lifecycle, srv *server.Server, hub *websocket.Hub, broker events.Broker, l *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hub.Run(ctx)

			if broker != nil {
				bridge := websocket.NewBridge(broker, hub)
				go func() {
					if err := bridge.Run(ctx); err != nil {
						l.Logger.Error("broker bridge stopped", zap.String("broker", broker.Name()), zap.Error(err))
					}
				}()
			}

			return srv.Start()
		},
		OnStop: func(stopCtx context.Context) error {
			err := srv.Shutdown(stopCtx)
			cancel()
			hub.Stop()
			l.Sync()
			return err
		},
	})
}
