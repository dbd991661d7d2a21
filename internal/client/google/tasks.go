package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"davinci-agent/internal/model"
)

// Task Google Tasks 中的一条待办
type Task struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	Notes  string `json:"notes,omitempty"`
	Due    string `json:"due,omitempty"`
	Status string `json:"status,omitempty"`
}

type taskListsResp struct {
	Items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"items"`
}

type tasksResp struct {
	Items []Task `json:"items"`
}

// defaultTaskList 取用户的第一个任务列表；没有任何列表时报错
func (c *Client) defaultTaskList(ctx context.Context, creds model.Credentials) (string, error) {
	var lists taskListsResp
	if err := c.doJSON(ctx, creds, http.MethodGet, c.cfg.TasksBaseURL+"/users/@me/lists?maxResults=1", nil, &lists, "tasks lists"); err != nil {
		return "", err
	}
	if len(lists.Items) == 0 {
		return "", fmt.Errorf("%w: no Google Task lists found for this user", model.ErrInvalidParams)
	}
	return lists.Items[0].ID, nil
}

// AddTask 在默认列表中新建待办；Due 需为 RFC 3339
func (c *Client) AddTask(ctx context.Context, creds model.Credentials, p model.TaskParams) (Task, error) {
	listID, err := c.defaultTaskList(ctx, creds)
	if err != nil {
		return Task{}, err
	}
	in := Task{Title: p.Title, Notes: p.Notes, Due: p.Due}
	var out Task
	u := c.cfg.TasksBaseURL + "/lists/" + url.PathEscape(listID) + "/tasks"
	if err := c.doJSON(ctx, creds, http.MethodPost, u, in, &out, "tasks insert"); err != nil {
		return Task{}, err
	}
	return out, nil
}

// ListPendingTasks 列出默认列表中未完成的待办
func (c *Client) ListPendingTasks(ctx context.Context, creds model.Credentials, max int) ([]Task, error) {
	listID, err := c.defaultTaskList(ctx, creds)
	if err != nil {
		return nil, err
	}
	var resp tasksResp
	u := c.cfg.TasksBaseURL + "/lists/" + url.PathEscape(listID) + "/tasks?maxResults=" + strconv.Itoa(max)
	if err := c.doJSON(ctx, creds, http.MethodGet, u, nil, &resp, "tasks list"); err != nil {
		return nil, err
	}
	pending := make([]Task, 0, len(resp.Items))
	for _, t := range resp.Items {
		if t.Status != "completed" {
			pending = append(pending, t)
		}
	}
	return pending, nil
}
