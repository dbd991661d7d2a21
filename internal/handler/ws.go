package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"davinci-agent/internal/model"
	"davinci-agent/internal/service"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// WSHandler 通过 WebSocket 进行对话；每个文本帧是一轮，回复为 JSON 帧
type WSHandler struct {
	chatService *service.ChatService
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(svc *service.ChatService, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		chatService: svc,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		log:         log.With("component", "ws"),
	}
}

// Serve 升级连接并逐帧处理
// GET /api/v1/ws?session_id=
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写回错误响应
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx := c.Request.Context()
	h.log.Info("websocket connected", "session_id", sessionID)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Info("websocket closed", "session_id", sessionID)
			} else {
				h.log.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var out any
		resp, err := h.chatService.Chat(ctx, model.ChatRequest{SessionID: sessionID, Message: string(data)})
		switch {
		case errors.Is(err, model.ErrInvalidParams):
			out = gin.H{"session_id": sessionID, "error": "invalid request: " + err.Error()}
		case err != nil:
			out = gin.H{"session_id": sessionID, "task_id": resp.TaskID, "error": err.Error()}
		default:
			out = resp
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			h.log.Warn("websocket write failed", "session_id", sessionID, "error", err)
			return
		}
	}
}
