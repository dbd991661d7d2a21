package llm

import (
	"context"
	"fmt"
	"time"
)

const assistantPrompt = `You are Da Vinci, a friendly personal assistant that can also send email, manage tasks and schedule meetings.
Answer the user's message briefly and helpfully in plain text.`

// Fallback 处理非动作类消息：日期时间本地回答，其余交给大模型闲聊
type Fallback struct {
	client ChatClient
	now    func() time.Time
}

// NewFallback 创建兜底回复服务
func NewFallback(client ChatClient, now func() time.Time) *Fallback {
	if now == nil {
		now = time.Now
	}
	return &Fallback{client: client, now: now}
}

// Respond 按意图生成回复
func (f *Fallback) Respond(ctx context.Context, _ string, intent, text string) (string, error) {
	now := f.now()
	switch intent {
	case "date":
		return "Today is " + now.Format("Monday, January 2, 2006") + ".", nil
	case "time":
		return "It's " + now.Format("3:04 PM") + ".", nil
	case "day":
		return "Today is " + now.Weekday().String() + ".", nil
	}
	reply, err := f.client.Chat(ctx, assistantPrompt, text)
	if err != nil {
		return "", fmt.Errorf("fallback chat: %w", err)
	}
	return reply, nil
}
