package model

import "time"

// ReplyStatus 对话引擎一轮处理后的去向
type ReplyStatus string

const (
	StatusCollecting   ReplyStatus = "collecting"
	StatusCompleted    ReplyStatus = "completed"
	StatusFailed       ReplyStatus = "failed"
	StatusAuthRequired ReplyStatus = "auth_required"
	StatusFallback     ReplyStatus = "fallback"
)

// Reply 对话引擎的单轮输出
type Reply struct {
	Status  ReplyStatus
	Message string
	// Intent 本轮涉及的意图（收集中、已执行或需要登录的意图）
	Intent string
	// Missing 仍缺失的字段，按声明顺序
	Missing      []string
	AuthRequired bool
	LoginURL     string
	Result       *ActionResult
}

// ActionResult 动作执行成功后的简要结果
type ActionResult struct {
	Summary string         `json:"summary,omitempty"`
	ID      string         `json:"id,omitempty"`
	URL     string         `json:"url,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Credentials 调用外部服务所需的访问凭证
type Credentials struct {
	Provider    string
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// Authorization 返回 HTTP Authorization 头的值
func (c Credentials) Authorization() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + c.AccessToken
}
