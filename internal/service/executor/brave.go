package executor

import (
	"context"
	"fmt"
	"strings"

	"davinci-agent/internal/client/brave"
	"davinci-agent/internal/model"
)

const searchResultLimit = 3

// BraveExecutor 网页搜索执行器
type BraveExecutor struct {
	Client *brave.Client
	Cfg    brave.Config
}

// NewBraveExecutor 创建 Brave 执行器
func NewBraveExecutor(client *brave.Client, cfg brave.Config) *BraveExecutor {
	return &BraveExecutor{Client: client, Cfg: cfg}
}

// ExecuteSearch 搜索并返回前几条结果
func (e *BraveExecutor) ExecuteSearch(ctx context.Context, _ model.Credentials, fields map[string]string) (model.ActionResult, error) {
	if !e.Cfg.Enabled {
		return model.ActionResult{}, fmt.Errorf("%w: brave", model.ErrProviderDisabled)
	}
	query := fields["query"]
	results, err := e.Client.Search(ctx, query, searchResultLimit)
	if err != nil {
		return model.ActionResult{}, err
	}
	if len(results) == 0 {
		return model.ActionResult{Summary: fmt.Sprintf("I couldn't find anything for %q.", query)}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top results for %q:\n", query)
	items := make([]any, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, r.Description, r.URL)
		items = append(items, map[string]any{"title": r.Title, "description": r.Description, "url": r.URL})
	}
	return model.ActionResult{
		Summary: strings.TrimSuffix(b.String(), "\n"),
		URL:     results[0].URL,
		Payload: map[string]any{"results": items},
	}, nil
}
