package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"davinci-agent/internal/model"
	"davinci-agent/internal/service"
)

// ChatHandler 处理对话与会话相关 HTTP 请求
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: svc}
}

// Chat 处理一轮用户消息
// POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := h.chatService.Chat(c.Request.Context(), req)
	if errors.Is(err, model.ErrInvalidParams) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"session_id": resp.SessionID,
			"task_id":    resp.TaskID,
			"error":      err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Session 返回会话当前槽位状态
// GET /api/v1/sessions/:id
func (h *ChatHandler) Session(c *gin.Context) {
	view, err := h.chatService.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Reset 清空会话的未完成意图
// DELETE /api/v1/sessions/:id
func (h *ChatHandler) Reset(c *gin.Context) {
	id := c.Param("id")
	if err := h.chatService.Reset(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "reset"})
}

// Messages 返回会话记录
// GET /api/v1/sessions/:id/messages
func (h *ChatHandler) Messages(c *gin.Context) {
	id := c.Param("id")
	msgs, err := h.chatService.Messages(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "messages": msgs})
}
