package model

import "strings"

// EmailParams 发送邮件参数
type EmailParams struct {
	To      []string
	Subject string
	Body    string
}

// TaskParams 新建待办参数
type TaskParams struct {
	Title string
	Notes string
	Due   string
}

// EventParams 新建日程参数
type EventParams struct {
	Summary     string
	Start       string
	End         string
	Description string
	Location    string
	AddMeet     bool
}

// ParseEmailParams 从槽位解析邮件参数；to_email 支持逗号分隔的多个地址
func ParseEmailParams(fields map[string]string) EmailParams {
	result := EmailParams{
		Subject: fields["subject"],
		Body:    fields["body"],
	}
	for _, addr := range strings.Split(fields["to_email"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			result.To = append(result.To, addr)
		}
	}
	return result
}

// ParseTaskParams 从槽位解析待办参数
func ParseTaskParams(fields map[string]string) TaskParams {
	return TaskParams{
		Title: fields["task_title"],
		Notes: fields["task_notes"],
		Due:   fields["due_date"],
	}
}

// ParseEventParams 从槽位解析日程参数
func ParseEventParams(fields map[string]string) EventParams {
	return EventParams{
		Summary:     fields["summary"],
		Start:       fields["start_time"],
		End:         fields["end_time"],
		Description: fields["description"],
		Location:    fields["location"],
		AddMeet:     fields["add_meet"] == "true",
	}
}
