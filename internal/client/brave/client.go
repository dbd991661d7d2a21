package brave

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Config Brave Search 客户端配置
type Config struct {
	APIKey  string
	BaseURL string
	Enabled bool
	Timeout time.Duration
}

// Client Brave Search API 客户端
type Client struct {
	cfg    Config
	client *http.Client
}

const defaultBraveBase = "https://api.search.brave.com"

// NewClient 创建 Brave 客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBraveBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Result 一条搜索结果
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

type searchResp struct {
	Web struct {
		Results []Result `json:"results"`
	} `json:"web"`
}

// Search 网页搜索，返回前 n 条有摘要的结果
func (c *Client) Search(ctx context.Context, query string, n int) ([]Result, error) {
	q := url.Values{"q": {query}, "count": {strconv.Itoa(n)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/res/v1/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave search: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("brave search: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("brave search: http status %d, body: %s", resp.StatusCode, string(b))
	}
	var result searchResp
	if err := sonic.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("brave search parse response: %w", err)
	}
	out := make([]Result, 0, n)
	for _, r := range result.Web.Results {
		if r.Description == "" {
			continue
		}
		out = append(out, r)
		if len(out) == n {
			break
		}
	}
	return out, nil
}
