package google

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"davinci-agent/internal/model"
)

// Config Google API 客户端配置；BaseURL 为空时使用官方地址，测试时指向 httptest
type Config struct {
	GmailBaseURL    string
	TasksBaseURL    string
	CalendarBaseURL string
	// Footer 追加到每封邮件 HTML 正文末尾
	Footer  string
	Timeout time.Duration
}

// Client Google Gmail/Tasks/Calendar 客户端；凭证按调用传入
type Client struct {
	cfg    Config
	client *http.Client
}

const (
	defaultGmailBase    = "https://gmail.googleapis.com/gmail/v1"
	defaultTasksBase    = "https://tasks.googleapis.com/tasks/v1"
	defaultCalendarBase = "https://www.googleapis.com/calendar/v3"
	defaultFooter       = `<br><br><span style="color: #999999; font-size: 7pt;">Sent from <strong>Da_Vinci</strong></span>`
)

// NewClient 创建 Google 客户端
func NewClient(cfg Config) *Client {
	if cfg.GmailBaseURL == "" {
		cfg.GmailBaseURL = defaultGmailBase
	}
	if cfg.TasksBaseURL == "" {
		cfg.TasksBaseURL = defaultTasksBase
	}
	if cfg.CalendarBaseURL == "" {
		cfg.CalendarBaseURL = defaultCalendarBase
	}
	if cfg.Footer == "" {
		cfg.Footer = defaultFooter
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// checkHTTPStatus 读取 body 并检查 HTTP 状态码；非 2xx 时直接返回错误，不解析 JSON
func (c *Client) checkHTTPStatus(resp *http.Response, apiName string) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", apiName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: http status %d, body: %s", apiName, resp.StatusCode, string(b))
	}
	return b, nil
}

// doJSON 发送请求并把响应解到 out（可为 nil）
func (c *Client) doJSON(ctx context.Context, creds model.Credentials, method, url string, in, out any, apiName string) error {
	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", apiName, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", apiName, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Authorization", creds.Authorization())
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", apiName, err)
	}
	b, err := c.checkHTTPStatus(resp, apiName)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s parse response: %w, body: %s", apiName, err, string(b))
	}
	return nil
}
