// Package dialogue 实现多轮槽位填充的对话状态机。
//
// 每轮对话：加载会话状态；有进行中的意图时只为缺失字段做抽取、校验并合并，
// 仍有缺失就追问声明顺序中的第一个缺失字段，否则执行动作；没有进行中的意图时
// 先分类，未注册的意图交给兜底回复。动作执行后无论成功失败都回到 Idle。
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"davinci-agent/internal/model"
	"davinci-agent/internal/registry"
	"davinci-agent/internal/session"
	"davinci-agent/internal/slot"
)

// FallbackIntent 分类器无法归类时返回的标签
const FallbackIntent = "ai"

// Classifier 意图分类，失败时返回 FallbackIntent，不返回错误
type Classifier interface {
	Classify(ctx context.Context, text string) string
}

// Extractor 从文本中抽取指定字段；找不到的字段直接缺席
type Extractor interface {
	Extract(ctx context.Context, text string, fields []string) (map[string]any, error)
}

// Credentials 按会话提供外部服务凭证；没有凭证时返回 model.ErrMissingCredentials
type Credentials interface {
	Get(ctx context.Context, sessionID, provider string) (model.Credentials, error)
	LoginURL(sessionID, provider string) string
}

// Fallback 处理不属于任何已注册动作的消息
type Fallback interface {
	Respond(ctx context.Context, sessionID, intent, text string) (string, error)
}

// Options 控制器依赖
type Options struct {
	Store       session.Store
	Registry    *registry.Registry
	Validator   *slot.Validator
	Aliases     slot.AliasTable
	Classifier  Classifier
	Extractor   Extractor
	Credentials Credentials
	Fallback    Fallback
	// Transcript 可选；设置后每轮写入用户与助手消息及槽位变化
	Transcript session.Transcript
	Logger     *slog.Logger
	Now        func() time.Time
}

// Controller 对话控制器，可并发使用；同一会话的轮次由 Store.Lock 串行化
type Controller struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// NewController 创建对话控制器
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Aliases == nil {
		opts.Aliases = slot.DefaultAliases
	}
	if opts.Validator == nil {
		opts.Validator = slot.NewValidator(now)
	}
	return &Controller{opts: opts, log: log.With("component", "dialogue"), now: now}
}

// turn 单轮处理上下文
type turn struct {
	id     string
	text   string
	before map[string]string
	st     session.State
}

// Turn 处理一条用户消息。所有对话结果都以 Reply 返回，error 仅表示存储等基础设施故障
func (c *Controller) Turn(ctx context.Context, sessionID, text string) (model.Reply, error) {
	unlock, err := c.opts.Store.Lock(ctx, sessionID)
	if err != nil {
		return model.Reply{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	st, err := c.opts.Store.Get(ctx, sessionID)
	if err != nil {
		return model.Reply{}, fmt.Errorf("load session: %w", err)
	}
	st.Locked = false
	t := &turn{id: sessionID, text: text, before: st.Clone().PendingData, st: st}

	reply, err := c.dispatch(ctx, t)
	if err != nil {
		return model.Reply{}, err
	}
	c.record(ctx, t, reply)
	return reply, nil
}

func (c *Controller) dispatch(ctx context.Context, t *turn) (model.Reply, error) {
	if t.st.Idle() {
		return c.start(ctx, t, "")
	}
	desc, ok := c.opts.Registry.Lookup(t.st.PendingIntent)
	if !ok {
		c.log.Warn("pending intent no longer registered, clearing", "session", t.id, "intent", t.st.PendingIntent)
		t.st.Clear()
		if err := c.persist(ctx, t); err != nil {
			return model.Reply{}, err
		}
		return c.start(ctx, t, "")
	}
	return c.resume(ctx, t, desc)
}

// resume 继续收集进行中意图的缺失字段
func (c *Controller) resume(ctx context.Context, t *turn, desc *registry.Descriptor) (model.Reply, error) {
	missing := c.missing(desc, t.st.PendingData)
	raw := c.extract(ctx, t, desc, missing)

	if len(raw) == 0 && len(missing) > 0 {
		// 本轮什么都没抽到，看看用户是不是换了话题
		intent := c.opts.Classifier.Classify(ctx, t.text)
		if intent != desc.Name && intent != FallbackIntent && intent != "" {
			c.log.Info("intent interrupted", "session", t.id, "from", desc.Name, "to", intent)
			return c.start(ctx, t, intent)
		}
	}

	creds, reply, ok := c.credentials(ctx, t, desc)
	if !ok {
		return reply, nil
	}
	return c.fill(ctx, t, desc, creds, missing, raw)
}

// start 从 Idle 开始处理；intent 为空时先分类
func (c *Controller) start(ctx context.Context, t *turn, intent string) (model.Reply, error) {
	if intent == "" {
		intent = c.opts.Classifier.Classify(ctx, t.text)
	}
	desc, ok := c.opts.Registry.Lookup(intent)
	if !ok {
		if !t.st.Idle() {
			t.st.Clear()
			if err := c.persist(ctx, t); err != nil {
				return model.Reply{}, err
			}
		}
		return c.fallback(ctx, t, intent), nil
	}

	creds, reply, ok := c.credentials(ctx, t, desc)
	if !ok {
		return reply, nil
	}

	t.st = session.State{PendingIntent: desc.Name, PendingData: map[string]string{}}
	c.log.Debug("collecting", "session", t.id, "intent", desc.Name)
	missing := c.missing(desc, t.st.PendingData)
	raw := c.extract(ctx, t, desc, missing)
	return c.fill(ctx, t, desc, creds, missing, raw)
}

// fill 合并本轮抽取结果，追问或执行
func (c *Controller) fill(ctx context.Context, t *turn, desc *registry.Descriptor, creds model.Credentials, missing []string, raw map[string]any) (model.Reply, error) {
	candidates := append(append([]string(nil), missing...), c.unsetOptional(desc, t.st.PendingData)...)
	for _, field := range candidates {
		if norm, ok := c.accept(t, field, raw); ok {
			t.st.PendingData[field] = norm
		}
	}

	missing = c.missing(desc, t.st.PendingData)
	if len(missing) > 0 {
		if err := c.persist(ctx, t); err != nil {
			return model.Reply{}, err
		}
		return model.Reply{
			Status:  model.StatusCollecting,
			Message: desc.Prompt(missing[0]),
			Intent:  desc.Name,
			Missing: missing,
		}, nil
	}
	return c.execute(ctx, t, desc, creds)
}

// accept 先取规范字段名的值；缺失或校验失败时再按别名表取值并校验
func (c *Controller) accept(t *turn, field string, raw map[string]any) (string, bool) {
	if v, ok := raw[field]; ok && v != nil {
		if norm, ok := c.opts.Validator.Check(field, v); ok {
			return norm, true
		}
		c.log.Debug("value rejected", "session", t.id, "field", field)
	}
	if v, ok := c.opts.Aliases.Lookup(field, raw); ok {
		if norm, ok := c.opts.Validator.Check(field, v); ok {
			return norm, true
		}
		c.log.Debug("alias value rejected", "session", t.id, "field", field)
	}
	return "", false
}

// execute 调用动作；成功失败都清空状态
func (c *Controller) execute(ctx context.Context, t *turn, desc *registry.Descriptor, creds model.Credentials) (model.Reply, error) {
	fields := make(map[string]string, len(desc.RequiredFields))
	for _, f := range desc.RequiredFields {
		fields[f] = t.st.PendingData[f]
	}
	for _, f := range desc.OptionalFields {
		if v, ok := t.st.PendingData[f]; ok {
			fields[f] = v
		}
	}

	c.log.Debug("executing", "session", t.id, "intent", desc.Name)
	result, invokeErr := desc.Invoke(ctx, creds, fields)

	t.st.Clear()
	if err := c.persist(ctx, t); err != nil {
		return model.Reply{}, err
	}

	if invokeErr != nil {
		err := &model.ActionError{Action: desc.Name, Err: invokeErr}
		c.log.Warn("action failed", "session", t.id, "intent", desc.Name, "error", invokeErr)
		return model.Reply{
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("Sorry, %s failed: %v", desc.Name, err.Err),
			Intent:  desc.Name,
		}, nil
	}
	c.log.Info("action completed", "session", t.id, "intent", desc.Name)
	return model.Reply{
		Status:  model.StatusCompleted,
		Message: desc.Acknowledge(fields, result),
		Intent:  desc.Name,
		Result:  &result,
	}, nil
}

// credentials 在修改任何状态前取凭证；ok 为 false 时直接返回 reply
func (c *Controller) credentials(ctx context.Context, t *turn, desc *registry.Descriptor) (model.Credentials, model.Reply, bool) {
	if desc.Provider == "" {
		return model.Credentials{}, model.Reply{}, true
	}
	creds, err := c.opts.Credentials.Get(ctx, t.id, desc.Provider)
	if err == nil {
		return creds, model.Reply{}, true
	}
	if errors.Is(err, model.ErrMissingCredentials) {
		return creds, model.Reply{
			Status:       model.StatusAuthRequired,
			Message:      fmt.Sprintf("Please sign in with %s to continue.", providerTitle(desc.Provider)),
			Intent:       desc.Name,
			AuthRequired: true,
			LoginURL:     c.opts.Credentials.LoginURL(t.id, desc.Provider),
		}, false
	}
	c.log.Warn("credentials unavailable", "session", t.id, "provider", desc.Provider, "error", err)
	return creds, model.Reply{
		Status:  model.StatusFailed,
		Message: fmt.Sprintf("Sorry, %s failed: %v", desc.Name, err),
		Intent:  desc.Name,
	}, false
}

// extract 只在还有必填字段缺失时调用抽取器；未填的可选字段顺带抽取
func (c *Controller) extract(ctx context.Context, t *turn, desc *registry.Descriptor, missing []string) map[string]any {
	if len(missing) == 0 {
		return nil
	}
	fields := append(append([]string(nil), missing...), c.unsetOptional(desc, t.st.PendingData)...)
	raw, err := c.opts.Extractor.Extract(ctx, t.text, fields)
	if err != nil {
		c.log.Warn("extraction failed", "session", t.id, "error", err)
		return nil
	}
	return raw
}

func (c *Controller) fallback(ctx context.Context, t *turn, intent string) model.Reply {
	msg, err := c.opts.Fallback.Respond(ctx, t.id, intent, t.text)
	if err != nil {
		c.log.Warn("fallback failed", "session", t.id, "intent", intent, "error", err)
		msg = "Sorry, I can't answer that right now. Please try again."
	}
	return model.Reply{Status: model.StatusFallback, Message: msg, Intent: intent}
}

// missing 按声明顺序返回仍无有效值的字段
func (c *Controller) missing(desc *registry.Descriptor, data map[string]string) []string {
	var out []string
	for _, f := range desc.RequiredFields {
		v, ok := data[f]
		if !ok || !c.opts.Validator.Validate(f, v) {
			out = append(out, f)
		}
	}
	return out
}

func (c *Controller) unsetOptional(desc *registry.Descriptor, data map[string]string) []string {
	var out []string
	for _, f := range desc.OptionalFields {
		if _, ok := data[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (c *Controller) persist(ctx context.Context, t *turn) error {
	if err := c.opts.Store.Put(ctx, t.id, t.st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// record 写会话记录；失败只记日志，不影响本轮结果
func (c *Controller) record(ctx context.Context, t *turn, reply model.Reply) {
	if c.opts.Transcript == nil {
		return
	}
	delta, err := session.Delta(t.before, t.st.PendingData)
	if err != nil {
		c.log.Warn("slot delta failed", "session", t.id, "error", err)
	}
	now := c.now().UTC().Format(time.RFC3339)
	msgs := []model.TranscriptMessage{
		{Sender: "user", Content: t.text, SlotDelta: delta, CreatedAt: now},
		{Sender: "assistant", Content: reply.Message, CreatedAt: now},
	}
	for _, m := range msgs {
		if err := c.opts.Transcript.Append(ctx, t.id, m); err != nil {
			c.log.Warn("append transcript failed", "session", t.id, "error", err)
			return
		}
	}
}

func providerTitle(p string) string {
	switch p {
	case "google":
		return "Google"
	case "microsoft":
		return "Microsoft"
	default:
		return p
	}
}
