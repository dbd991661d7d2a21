package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"davinci-agent/internal/dialogue"
	"davinci-agent/internal/model"
	"davinci-agent/internal/session"
)

// ChatService 编排：接收用户消息 -> 对话控制器 -> 对外响应
type ChatService struct {
	ctrl       *dialogue.Controller
	store      session.Store
	transcript session.Transcript
	log        *slog.Logger
}

// NewChatService 创建对话服务；transcript 可为 nil
func NewChatService(ctrl *dialogue.Controller, store session.Store, transcript session.Transcript, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{
		ctrl:       ctrl,
		store:      store,
		transcript: transcript,
		log:        log.With("component", "chat"),
	}
}

// Chat 处理一轮用户消息。会话 ID 为空时分配新会话
func (s *ChatService) Chat(ctx context.Context, req model.ChatRequest) (model.ChatResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	taskID := uuid.NewString()
	resp := model.ChatResponse{SessionID: sessionID, TaskID: taskID}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return resp, fmt.Errorf("%w: empty message", model.ErrInvalidParams)
	}

	reply, err := s.ctrl.Turn(ctx, sessionID, text)
	if err != nil {
		s.log.Error("turn failed", "session_id", sessionID, "task_id", taskID, "error", err)
		return resp, err
	}
	s.log.Info("turn handled",
		"session_id", sessionID,
		"task_id", taskID,
		"status", reply.Status,
		"intent", reply.Intent,
	)
	return model.NewChatResponse(sessionID, taskID, reply), nil
}

// Session 返回会话当前槽位状态；不存在的会话视为空闲
func (s *ChatService) Session(ctx context.Context, id string) (model.SessionView, error) {
	st, err := s.store.Get(ctx, id)
	if err != nil {
		return model.SessionView{}, fmt.Errorf("load session: %w", err)
	}
	return st.View(id), nil
}

// Reset 丢弃会话中未完成的意图与已收集字段
func (s *ChatService) Reset(ctx context.Context, id string) error {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	var st session.State
	st.Clear()
	if err := s.store.Put(ctx, id, st); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.log.Info("session reset", "session_id", id)
	return nil
}

// Messages 返回会话记录；未配置记录存储时返回空
func (s *ChatService) Messages(ctx context.Context, id string) ([]model.TranscriptMessage, error) {
	if s.transcript == nil {
		return []model.TranscriptMessage{}, nil
	}
	msgs, err := s.transcript.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if msgs == nil {
		msgs = []model.TranscriptMessage{}
	}
	return msgs, nil
}
