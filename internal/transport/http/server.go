package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shelfx/shelfx-chat/internal/auth"
	"github.com/shelfx/shelfx-chat/internal/config"
	"github.com/shelfx/shelfx-chat/internal/core"
	"github.com/shelfx/shelfx-chat/internal/metrics"
)

const limiterIdleTTL = 10 * time.Minute

// NewServer builds the HTTP server: health, metrics, the chat WebSocket and the
// read-only REST API.
func NewServer(hub *core.Hub, cfg *config.Config, m *metrics.Metrics, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	jwtCfg := JWTConfigFrom(cfg)
	requireAuth := AuthMiddleware(jwtCfg, logger)

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	limiter := newSendLimiter(cfg.Chat.SendRate, cfg.Chat.SendBurst, limiterIdleTTL)
	ws := NewWSHandler(hub, limiter, m, logger)
	router.GET("/ws", requireAuth, ws.Handle)

	api := NewAPIHandlers(hub, logger)
	apiGroup := router.Group("/api", requireAuth)
	{
		apiGroup.GET("/conversations", api.ListConversations)
		apiGroup.GET("/conversations/:id/messages", api.History)
		apiGroup.GET("/unread", api.Unread)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// JWTConfigFrom extracts token validation settings from cfg.
func JWTConfigFrom(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
