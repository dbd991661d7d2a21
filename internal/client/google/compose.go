package google

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"

	"davinci-agent/internal/model"
)

// composeMessage 构建 multipart/alternative 邮件：纯文本原文 + markdown 渲染的 HTML（带页脚）。
// 不设置 From，由 Gmail 按授权账号填写
func composeMessage(p model.EmailParams, footer string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(p.Subject)

	to := make([]*mail.Address, 0, len(p.To))
	for _, a := range p.To {
		addr, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", a, err)
		}
		to = append(to, addr)
	}
	h.SetAddressList("To", to)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(p.Body), &html); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	html.WriteString(footer)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", p.Body},
		{"text/html; charset=utf-8", html.String()},
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.Set("Content-Type", part.contentType)
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create part: %w", err)
		}
		if _, err := io.WriteString(pw, part.content); err != nil {
			return nil, fmt.Errorf("write part: %w", err)
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("close part: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}
