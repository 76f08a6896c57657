package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftwoodlabs/raggate/handlers"
	"github.com/driftwoodlabs/raggate/observability"
	"github.com/driftwoodlabs/raggate/session"
	"github.com/driftwoodlabs/raggate/storage"
)

// SetupRoutes registers the gateway's HTTP surface on the router.
func SetupRoutes(router *gin.Engine, sessions session.Store,
	conversations *storage.ConversationStore, turns handlers.TurnRunner,
	metrics *observability.ChatMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/session", handlers.ResolveSession(sessions))
		v1.DELETE("/sessions/:sessionId", handlers.InvalidateSession(sessions))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(turns, sessions, conversations, metrics))
	}
}
