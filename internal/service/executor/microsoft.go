package executor

import (
	"context"
	"fmt"
	"strings"

	"davinci-agent/internal/client/microsoft"
	"davinci-agent/internal/model"
)

// MicrosoftExecutor Outlook 相关动作执行器
type MicrosoftExecutor struct {
	Client *microsoft.Client
}

// NewMicrosoftExecutor 创建 Microsoft 执行器
func NewMicrosoftExecutor(client *microsoft.Client) *MicrosoftExecutor {
	return &MicrosoftExecutor{Client: client}
}

// ExecuteSendMail 通过 Outlook 发送邮件
func (e *MicrosoftExecutor) ExecuteSendMail(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
	p := model.ParseEmailParams(fields)
	if len(p.To) == 0 {
		return model.ActionResult{}, fmt.Errorf("%w: no recipient", model.ErrInvalidParams)
	}
	if err := e.Client.SendMail(ctx, creds, p); err != nil {
		return model.ActionResult{}, err
	}
	return model.ActionResult{
		Summary: fmt.Sprintf("Email sent via Outlook to %s with subject %q.", strings.Join(p.To, ", "), p.Subject),
	}, nil
}
