package microsoft

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"davinci-agent/internal/model"
)

// Config Microsoft Graph 客户端配置
type Config struct {
	BaseURL string
	// RetryDelay 401 后重试前的等待时间
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client Microsoft Graph 客户端
type Client struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

const defaultGraphBase = "https://graph.microsoft.com/v1.0"

// NewClient 创建 Graph 客户端
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: log}
}

// 发送邮件：https://learn.microsoft.com/graph/api/user-sendmail
// POST me/sendMail，成功返回 202 Accepted，无响应体
type sendMailReq struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

type graphMessage struct {
	Subject      string      `json:"subject"`
	Body         graphBody   `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// SendMail 通过 Outlook 发送邮件
func (c *Client) SendMail(ctx context.Context, creds model.Credentials, p model.EmailParams) error {
	req := sendMailReq{
		Message: graphMessage{
			Subject: p.Subject,
			Body:    graphBody{ContentType: "Text", Content: p.Body},
		},
		SaveToSentItems: true,
	}
	for _, addr := range p.To {
		var r recipient
		r.EmailAddress.Address = addr
		req.Message.ToRecipients = append(req.Message.ToRecipients, r)
	}
	return c.post(ctx, creds, "/me/sendMail", req, "graph send mail")
}

// post 发送请求；首次 401 时等待后重试一次，刚签发的令牌偶尔尚未生效
func (c *Client) post(ctx context.Context, creds model.Credentials, path string, in any, apiName string) error {
	data, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", apiName, err)
	}
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: new request: %w", apiName, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", creds.Authorization())
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", apiName, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			c.log.Debug("graph returned 401, retrying", "api", apiName)
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", apiName, ctx.Err())
			}
		default:
			return fmt.Errorf("%s: http status %d, body: %s", apiName, resp.StatusCode, string(b))
		}
	}
}
