package executor

import (
	"context"
	"fmt"

	"davinci-agent/internal/client/brave"
	"davinci-agent/internal/client/google"
	"davinci-agent/internal/client/microsoft"
	"davinci-agent/internal/model"
	"davinci-agent/internal/registry"
)

// 意图名
const (
	IntentGmailCompose   = "gmail.compose"
	IntentGmailRead      = "gmail.read"
	IntentOutlookCompose = "outlook_mail.compose"
	IntentTasksAdd       = "google_tasks.add"
	IntentTasksRead      = "google_tasks.read"
	IntentMeetSchedule   = "google_meet.schedule"
	IntentWebSearch      = "web_search"
)

// 追问文案
var prompts = map[string]string{
	"to_email":   "Who should I send the email to? Please provide the recipient's email address.",
	"subject":    "What is the subject of your email?",
	"body":       "What should the body/message say?",
	"task_title": "What is the title of your task?",
	"due_date":   "When is this task due? (e.g. today, tomorrow, 26 dec, YYYY-MM-DD)",
	"summary":    "What should the meeting be called?",
	"start_time": "When should it start?",
	"end_time":   "When should it end?",
	"add_meet":   "Should I add a Google Meet link? (yes/no)",
	"query":      "What should I search for?",
}

// Executor 把意图路由到各服务的执行器（Google、Microsoft、Brave）
type Executor struct {
	google    *GoogleExecutor
	microsoft *MicrosoftExecutor
	brave     *BraveExecutor
}

// NewExecutor 创建执行器，组装各服务的执行器
func NewExecutor(googleClient *google.Client, msClient *microsoft.Client, braveClient *brave.Client, braveCfg brave.Config) *Executor {
	return &Executor{
		google:    NewGoogleExecutor(googleClient),
		microsoft: NewMicrosoftExecutor(msClient),
		brave:     NewBraveExecutor(braveClient, braveCfg),
	}
}

// Execute 执行单个意图，按名称路由到对应执行器
func (e *Executor) Execute(ctx context.Context, intent string, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
	switch intent {
	case IntentGmailCompose:
		return e.google.ExecuteSendMail(ctx, creds, fields)
	case IntentGmailRead:
		return e.google.ExecuteReadMail(ctx, creds, fields)
	case IntentTasksAdd:
		return e.google.ExecuteAddTask(ctx, creds, fields)
	case IntentTasksRead:
		return e.google.ExecuteReadTasks(ctx, creds, fields)
	case IntentMeetSchedule:
		return e.google.ExecuteScheduleMeet(ctx, creds, fields)
	case IntentOutlookCompose:
		return e.microsoft.ExecuteSendMail(ctx, creds, fields)
	case IntentWebSearch:
		return e.brave.ExecuteSearch(ctx, creds, fields)
	default:
		return model.ActionResult{}, fmt.Errorf("%w: %s", model.ErrUnknownIntent, intent)
	}
}

// Descriptors 返回全部动作描述，调用统一经过 Execute
func (e *Executor) Descriptors() []registry.Descriptor {
	descs := []registry.Descriptor{
		{Name: IntentGmailCompose, Provider: "google", RequiredFields: []string{"to_email", "subject", "body"}},
		{Name: IntentOutlookCompose, Provider: "microsoft", RequiredFields: []string{"to_email", "subject", "body"}},
		{Name: IntentTasksAdd, Provider: "google", RequiredFields: []string{"task_title", "due_date"}, OptionalFields: []string{"task_notes"}},
		{Name: IntentMeetSchedule, Provider: "google", RequiredFields: []string{"summary", "start_time", "end_time", "add_meet"}, OptionalFields: []string{"description", "location"}},
		{Name: IntentWebSearch, RequiredFields: []string{"query"}},
		{Name: IntentGmailRead, Provider: "google"},
		{Name: IntentTasksRead, Provider: "google"},
	}
	for i := range descs {
		name := descs[i].Name
		descs[i].Prompts = make(map[string]string, len(descs[i].RequiredFields))
		for _, f := range descs[i].RequiredFields {
			descs[i].Prompts[f] = prompts[f]
		}
		descs[i].Invoke = func(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
			return e.Execute(ctx, name, creds, fields)
		}
	}
	return descs
}

// Registry 用全部动作描述构建注册表
func (e *Executor) Registry() (*registry.Registry, error) {
	return registry.New(e.Descriptors()...)
}
