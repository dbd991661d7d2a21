package llm

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// ChatClient 大模型调用接口，由 client/llm.Client 实现
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userContent string) (string, error)
	CallTool(ctx context.Context, systemPrompt, userContent string, tool *schema.ToolInfo) (string, error)
}

// FallbackIntent 无法归类时的标签
const FallbackIntent = "ai"

// Intents 分类器可以返回的全部标签
var Intents = []string{
	"date", "time", "day", "web_search", "ai",
	"gmail.compose", "gmail.read",
	"outlook_mail.compose",
	"google_tasks.add", "google_tasks.read",
	"google_meet.schedule",
}

// Classifier 意图分类服务
type Classifier struct {
	client  ChatClient
	log     *slog.Logger
	allowed map[string]struct{}
	prompt  string
}

// NewClassifier 创建意图分类服务
func NewClassifier(client ChatClient, log *slog.Logger) *Classifier {
	allowed := make(map[string]struct{}, len(Intents))
	labels := append([]string(nil), Intents...)
	sort.Strings(labels)
	for _, l := range labels {
		allowed[l] = struct{}{}
	}
	return &Classifier{
		client:  client,
		log:     log,
		allowed: allowed,
		prompt:  classifierPrompt + strings.Join(labels, ", ") + classifierExamples,
	}
}

const classifierPrompt = `You are a strict classifier for an assistant.
Classify the user query into ONLY ONE of the following categories:

`

const classifierExamples = `

Return only one label in this format: service.action (e.g. gmail.compose).
Do not explain. Do not return multiple. Do not make up labels.
Examples:
'Send an email' -> gmail.compose
'Email bob@example.com from outlook' -> outlook_mail.compose
'What is the date today?' -> date
'Add a task to buy groceries' -> google_tasks.add
'Do I have any pending tasks?' -> google_tasks.read
'Set up a meeting with the team tomorrow at 10' -> google_meet.schedule
'Search the web for the best pizza in town' -> web_search
'Tell me a joke' -> ai`

// Classify 返回意图标签；调用失败或返回集合外的标签时返回 FallbackIntent
func (c *Classifier) Classify(ctx context.Context, text string) string {
	raw, err := c.client.Chat(ctx, c.prompt, text)
	if err != nil {
		c.log.Warn("classify failed, using fallback intent", "error", err)
		return FallbackIntent
	}
	intent := strings.ToLower(strings.TrimSpace(raw))
	intent = strings.Trim(intent, "'\"`.")
	if _, ok := c.allowed[intent]; !ok {
		c.log.Debug("classifier returned unknown label", "label", raw)
		return FallbackIntent
	}
	return intent
}

// ExtractJSON 从回复中提取 JSON（大模型可能带 markdown 代码块）
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
