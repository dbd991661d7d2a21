package model

// ChatRequest 一轮对话请求
type ChatRequest struct {
	// SessionID 会话标识；为空时由服务端分配
	SessionID string `json:"session_id,omitempty"`
	// Message 用户本轮输入
	Message string `json:"message" binding:"required"`
}

// ChatResponse 一轮对话的处理结果
type ChatResponse struct {
	SessionID string        `json:"session_id"`
	TaskID    string        `json:"task_id"`
	Status    ReplyStatus   `json:"status"`
	Response  string        `json:"response"`
	Intent    string        `json:"intent,omitempty"`
	Missing   []string      `json:"missing,omitempty"`
	Result    *ActionResult `json:"result,omitempty"`
	// AuthRequired 与 LoginURL 仅在需要登录时出现，调用方据此区分「需要登录」和「动作失败」
	AuthRequired bool   `json:"auth_required,omitempty"`
	LoginURL     string `json:"login_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewChatResponse 把引擎的 Reply 转为对外响应
func NewChatResponse(sessionID, taskID string, r Reply) ChatResponse {
	resp := ChatResponse{
		SessionID:    sessionID,
		TaskID:       taskID,
		Status:       r.Status,
		Response:     r.Message,
		Intent:       r.Intent,
		Missing:      r.Missing,
		Result:       r.Result,
		AuthRequired: r.AuthRequired,
		LoginURL:     r.LoginURL,
	}
	if r.Status == StatusFailed {
		resp.Error = r.Message
	}
	return resp
}

// TranscriptMessage 会话记录中的一条消息
type TranscriptMessage struct {
	Sender    string `json:"sender"` // user | assistant
	Content   string `json:"content"`
	SlotDelta string `json:"slot_delta,omitempty"`
	CreatedAt string `json:"created_at"`
}

// SessionView 会话当前的槽位状态
type SessionView struct {
	SessionID     string            `json:"session_id"`
	PendingIntent string            `json:"pending_intent,omitempty"`
	PendingData   map[string]string `json:"pending_data"`
	Locked        bool              `json:"is_locked"`
}
