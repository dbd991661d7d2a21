package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"davinci-agent/internal/model"
)

// 发送邮件：https://developers.google.com/gmail/api/reference/rest/v1/users.messages/send
// POST users/me/messages/send，请求体 raw 为 base64url 编码的 RFC 5322 报文
type sendMessageResp struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// SendMail 通过 Gmail 发送邮件，返回消息 ID
func (c *Client) SendMail(ctx context.Context, creds model.Credentials, p model.EmailParams) (string, error) {
	raw, err := composeMessage(p, c.cfg.Footer)
	if err != nil {
		return "", fmt.Errorf("gmail compose: %w", err)
	}
	reqBody := map[string]string{"raw": base64.URLEncoding.EncodeToString(raw)}
	var result sendMessageResp
	if err := c.doJSON(ctx, creds, http.MethodPost, c.cfg.GmailBaseURL+"/users/me/messages/send", reqBody, &result, "gmail send"); err != nil {
		return "", err
	}
	return result.ID, nil
}

// MessageSummary 收件箱中一封邮件的概要
type MessageSummary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

type listMessagesResp struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type getMessageResp struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// ListMessages 列出最近的邮件并补充发件人与主题
func (c *Client) ListMessages(ctx context.Context, creds model.Credentials, max int) ([]MessageSummary, error) {
	u := c.cfg.GmailBaseURL + "/users/me/messages?maxResults=" + strconv.Itoa(max)
	var list listMessagesResp
	if err := c.doJSON(ctx, creds, http.MethodGet, u, nil, &list, "gmail list"); err != nil {
		return nil, err
	}

	out := make([]MessageSummary, 0, len(list.Messages))
	for _, m := range list.Messages {
		q := url.Values{"format": {"metadata"}, "metadataHeaders": {"From", "Subject"}}
		var msg getMessageResp
		getURL := c.cfg.GmailBaseURL + "/users/me/messages/" + url.PathEscape(m.ID) + "?" + q.Encode()
		if err := c.doJSON(ctx, creds, http.MethodGet, getURL, nil, &msg, "gmail get"); err != nil {
			return nil, err
		}
		s := MessageSummary{ID: msg.ID, Snippet: msg.Snippet}
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				s.From = h.Value
			case "Subject":
				s.Subject = h.Value
			}
		}
		out = append(out, s)
	}
	return out, nil
}
