package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Config LLM 客户端配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 大模型客户端（OpenAI 兼容接口）
type Client struct {
	model model.ToolCallingChatModel
}

// NewClient 创建 LLM 客户端
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var temperature float32
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return &Client{model: cm}, nil
}

// NewWithModel 用现成的 chat model 构建客户端，测试时注入假模型
func NewWithModel(m model.ToolCallingChatModel) *Client {
	return &Client{model: m}
}

// Chat 发送对话请求，返回大模型回复文本
func (c *Client) Chat(ctx context.Context, systemPrompt, userContent string) (string, error) {
	resp, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userContent),
	})
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}
	return resp.Content, nil
}

// CallTool 强制模型调用指定工具，返回工具参数的 JSON 文本
func (c *Client) CallTool(ctx context.Context, systemPrompt, userContent string, tool *schema.ToolInfo) (string, error) {
	resp, err := c.model.Generate(ctx,
		[]*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(userContent),
		},
		model.WithTools([]*schema.ToolInfo{tool}),
		model.WithToolChoice(schema.ToolChoiceForced, tool.Name),
	)
	if err != nil {
		return "", fmt.Errorf("llm tool call: %w", err)
	}
	if len(resp.ToolCalls) == 0 {
		return "", fmt.Errorf("no tool call in model response: %s", resp.Content)
	}
	return resp.ToolCalls[0].Function.Arguments, nil
}
