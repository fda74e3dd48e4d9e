package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"agora-chat/config"
	"agora-chat/internal/handler"
	"agora-chat/internal/middleware"
	"agora-chat/internal/transport/httpdto"
	"agora-chat/internal/websocket"
	"agora-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Unread       *handler.UnreadHandler
	WebSocket    *websocket.Handler
}

// Deps carries the cross-cutting collaborators the router needs. A nil
// Health reports healthy; a nil MessageLimiter disables send throttling.
type Deps struct {
	Auth           middleware.Authenticator
	MessageLimiter middleware.MessageLimiter
	Health         func(ctx context.Context) error
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(l))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Deps) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.MetricsMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if handlers.WebSocket != nil {
		s.engine.GET("/ws", handlers.WebSocket.Handle)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(deps.Auth))
	{
		v1.GET("/unread", handlers.Unread.Counts)

		conversations := v1.Group("/conversations")
		conversations.GET("", handlers.Conversation.List)
		conversations.POST("/direct", handlers.Conversation.StartDirect)
		conversations.POST("/group", handlers.Conversation.CreateGroup)
		conversations.GET("/:id", handlers.Conversation.GetByID)
		conversations.GET("/:id/unread", handlers.Unread.ConversationCount)
		conversations.GET("/:id/messages", handlers.Message.List)
		conversations.POST("/:id/messages", middleware.MessageRateLimitMiddleware(deps.MessageLimiter), handlers.Message.Send)
		conversations.POST("/:id/read", handlers.Message.MarkConversationRead)

		messages := v1.Group("/messages")
		messages.POST("/:id/seen", handlers.Message.MarkSeen)
		messages.DELETE("/:id", handlers.Message.Delete)
	}
}

// Start binds the port synchronously, so a busy port fails startup, then
// serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Logger.Warn("graceful shutdown failed", zap.Error(err))
		return err
	}
	s.logger.Logger.Info("http server stopped gracefully")
	return nil
}
