// Package session 保存每个会话的槽位填充状态、会话记录与 OAuth 令牌。
package session

import (
	"context"
	"errors"

	"davinci-agent/internal/model"
)

// ErrNotFound 令牌不存在
var ErrNotFound = errors.New("not found")

// State 会话的槽位状态；零值即 Idle
type State struct {
	PendingIntent string
	PendingData   map[string]string
	// Locked 仅表示读取时该会话正有一轮对话在处理，不落盘
	Locked bool
}

// Idle 是否没有进行中的意图
func (s State) Idle() bool {
	return s.PendingIntent == ""
}

// Clear 同时清空意图和已收集字段
func (s *State) Clear() {
	s.PendingIntent = ""
	s.PendingData = map[string]string{}
}

// Clone 深拷贝，避免调用方共享 PendingData
func (s State) Clone() State {
	out := State{PendingIntent: s.PendingIntent, Locked: s.Locked, PendingData: make(map[string]string, len(s.PendingData))}
	for k, v := range s.PendingData {
		out.PendingData[k] = v
	}
	return out
}

// View 转为对外展示结构
func (s State) View(id string) model.SessionView {
	c := s.Clone()
	return model.SessionView{
		SessionID:     id,
		PendingIntent: c.PendingIntent,
		PendingData:   c.PendingData,
		Locked:        c.Locked,
	}
}

// Store 槽位状态存储；读写都是整体替换
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Put(ctx context.Context, id string, st State) error
	// Lock 按会话串行化一整轮对话，返回的 unlock 必须调用
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// Transcript 会话记录
type Transcript interface {
	Append(ctx context.Context, id string, msg model.TranscriptMessage) error
	Messages(ctx context.Context, id string) ([]model.TranscriptMessage, error)
}

// TokenStore 按会话和提供方保存序列化后的 OAuth 令牌
type TokenStore interface {
	SaveToken(ctx context.Context, id, provider string, token []byte) error
	LoadToken(ctx context.Context, id, provider string) ([]byte, error)
}
