package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"davinci-agent/internal/auth"
	"davinci-agent/internal/middleware"
	"davinci-agent/internal/service"
)

// Router 注册路由与中间件
func Router(svc *service.ChatService, authManager *auth.Manager, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logger(log))

	chatHandler := NewChatHandler(svc)
	wsHandler := NewWSHandler(svc, log)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/sessions/:id", chatHandler.Session)
		v1.DELETE("/sessions/:id", chatHandler.Reset)
		v1.GET("/sessions/:id/messages", chatHandler.Messages)
		v1.GET("/ws", wsHandler.Serve)
	}

	authHandler := NewAuthHandler(authManager)
	a := r.Group("/auth/:provider")
	{
		a.GET("/login", authHandler.Login)
		a.GET("/callback", authHandler.Callback)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}
