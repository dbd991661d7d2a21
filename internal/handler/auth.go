package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"davinci-agent/internal/auth"
	"davinci-agent/internal/model"
)

// AuthHandler 处理 OAuth 登录与回调
type AuthHandler struct {
	manager *auth.Manager
}

// NewAuthHandler 创建授权处理器
func NewAuthHandler(m *auth.Manager) *AuthHandler {
	return &AuthHandler{manager: m}
}

// Login 跳转到提供方授权页
// GET /auth/:provider/login?session_id=
func (h *AuthHandler) Login(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: session_id is required"})
		return
	}
	target, err := h.manager.AuthCodeURL(sessionID, c.Param("provider"))
	if errors.Is(err, model.ErrProviderDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback 用授权码换取令牌并保存到发起登录的会话
// GET /auth/:provider/callback?code=&state=
func (h *AuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	if reason := c.Query("error"); reason != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization denied: " + reason})
		return
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: code and state are required"})
		return
	}

	sessionID, err := h.manager.Exchange(c.Request.Context(), provider, state, code)
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, model.ErrProviderDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"provider":   provider,
		"status":     "authorized",
	})
}
