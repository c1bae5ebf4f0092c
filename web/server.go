package web

import (
	"context"
	"net/http"

	"knowledge-agent/config"
	"knowledge-agent/database"
	"knowledge-agent/tokens"
	"knowledge-agent/web/handlers"
	"knowledge-agent/web/middleware"
	"knowledge-agent/web/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	logger *zap.Logger
	config *config.Config
}

func NewServer(
	cfg *config.Config,
	store *database.PostgresStore,
	pipeline *services.Pipeline,
	counter *tokens.Counter,
	limiter *middleware.ClientRateLimiter,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router: router,
		logger: logger,
		config: cfg,
	}

	server.setupRoutes(store, pipeline, counter, limiter)
	return server
}

func (s *Server) setupRoutes(
	store *database.PostgresStore,
	pipeline *services.Pipeline,
	counter *tokens.Counter,
	limiter *middleware.ClientRateLimiter,
) {
	chatHandler := handlers.NewChatHandler(s.config, pipeline, store, counter, s.logger)
	conversationHandler := handlers.NewConversationHandler(store, s.logger)
	rateLimit := middleware.RateLimitMiddleware(limiter, s.logger)

	s.router.POST("/chat/stream", rateLimit, chatHandler.StreamChat)
	s.router.POST("/chat/", rateLimit, chatHandler.SendMessage)

	conversations := s.router.Group("/chat/conversations")
	conversations.GET("/", conversationHandler.List)
	conversations.GET("/:conversationID", conversationHandler.Get)
	conversations.PATCH("/:conversationID", conversationHandler.Update)
	conversations.DELETE("/:conversationID", conversationHandler.Delete)
	conversations.GET("/:conversationID/token-usage", chatHandler.TokenUsage)
	conversations.POST("/:conversationID/messages/:messageID/feedback", conversationHandler.Feedback)
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
