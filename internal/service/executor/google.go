package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"davinci-agent/internal/client/google"
	"davinci-agent/internal/model"
)

const (
	readMailLimit  = 5
	readTasksLimit = 20
)

// GoogleExecutor Gmail、Tasks、Calendar 相关动作执行器
type GoogleExecutor struct {
	Client *google.Client
}

// NewGoogleExecutor 创建 Google 执行器
func NewGoogleExecutor(client *google.Client) *GoogleExecutor {
	return &GoogleExecutor{Client: client}
}

// ExecuteSendMail 通过 Gmail 发送邮件
func (e *GoogleExecutor) ExecuteSendMail(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
	p := model.ParseEmailParams(fields)
	if len(p.To) == 0 {
		return model.ActionResult{}, fmt.Errorf("%w: no recipient", model.ErrInvalidParams)
	}
	id, err := e.Client.SendMail(ctx, creds, p)
	if err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{
		Summary: fmt.Sprintf("Email sent to %s with subject %q.", strings.Join(p.To, ", "), p.Subject),
		ID:      id,
	}, nil
}

// ExecuteReadMail 列出最近的邮件
func (e *GoogleExecutor) ExecuteReadMail(ctx context.Context, creds model.Credentials, _ map[string]string) (model.ActionResult, error) {
	msgs, err := e.Client.ListMessages(ctx, creds, readMailLimit)
	if err != nil {
		return model.ActionResult{}, err
	}
	if len(msgs) == 0 {
		return model.ActionResult{Summary: "No recent emails found."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d recent emails:\n", len(msgs))
	items := make([]any, 0, len(msgs))
	for i, m := range msgs {
		fmt.Fprintf(&b, "%d. From %s about %q\n", i+1, m.From, m.Subject)
		items = append(items, map[string]any{"id": m.ID, "from": m.From, "subject": m.Subject, "snippet": m.Snippet})
	}
	return model.ActionResult{
		Summary: strings.TrimSuffix(b.String(), "\n"),
		Payload: map[string]any{"messages": items},
	}, nil
}

// ExecuteAddTask 新建待办
func (e *GoogleExecutor) ExecuteAddTask(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
	p := model.ParseTaskParams(fields)
	task, err := e.Client.AddTask(ctx, creds, p)
	if err != nil {
		return model.ActionResult{}, err
	}
	summary := fmt.Sprintf("Task %q added.", p.Title)
	if day := dateOnly(p.Due); day != "" {
		summary = fmt.Sprintf("Task %q added, due %s.", p.Title, day)
	}
	return model.ActionResult{Summary: summary, ID: task.ID}, nil
}

// ExecuteReadTasks 列出未完成的待办
func (e *GoogleExecutor) ExecuteReadTasks(ctx context.Context, creds model.Credentials, _ map[string]string) (model.ActionResult, error) {
	tasks, err := e.Client.ListPendingTasks(ctx, creds, readTasksLimit)
	if err != nil {
		return model.ActionResult{}, err
	}
	if len(tasks) == 0 {
		return model.ActionResult{Summary: "You have no pending tasks. Congratulations on completing everything!"}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d pending tasks:\n", len(tasks))
	for i, t := range tasks {
		title := t.Title
		if title == "" {
			title = "(no title)"
		}
		if day := dateOnly(t.Due); day != "" {
			fmt.Fprintf(&b, "%d. %s (Due: %s)\n", i+1, title, day)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		}
		if notes := strings.TrimSpace(t.Notes); notes != "" {
			fmt.Fprintf(&b, "   - Details: %s\n", notes)
		}
	}
	return model.ActionResult{Summary: strings.TrimSuffix(b.String(), "\n")}, nil
}

// ExecuteScheduleMeet 在主日历创建会议，可附带 Google Meet
func (e *GoogleExecutor) ExecuteScheduleMeet(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
	p := model.ParseEventParams(fields)
	start, err1 := time.Parse(time.RFC3339, p.Start)
	end, err2 := time.Parse(time.RFC3339, p.End)
	if err1 == nil && err2 == nil && !end.After(start) {
		return model.ActionResult{}, fmt.Errorf("%w: meeting must end after it starts", model.ErrInvalidParams)
	}
	ev, err := e.Client.CreateEvent(ctx, creds, p)
	if err != nil {
		return model.ActionResult{}, err
	}
	when := p.Start
	if err1 == nil {
		when = start.Format("Mon Jan 2 15:04")
	}
	summary := fmt.Sprintf("Meeting %q scheduled for %s.", p.Summary, when)
	if ev.HangoutLink != "" {
		summary += " Google Meet link: " + ev.HangoutLink
	}
	return model.ActionResult{Summary: summary, ID: ev.ID, URL: ev.HTMLLink}, nil
}

// dateOnly 取 RFC 3339 时间的日期部分
func dateOnly(ts string) string {
	day, _, _ := strings.Cut(ts, "T")
	return day
}
