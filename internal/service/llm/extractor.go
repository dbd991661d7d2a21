package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/schema"

	"davinci-agent/internal/model"
	"davinci-agent/internal/slot"
)

const extractToolName = "extract_fields"

const extractorPrompt = `You extract field values for an assistant action from the user's message.
Call the extract_fields tool with every field you can find. Leave a field as an empty string when the message does not contain it.
If the message contains only a generic trigger phrase (like "send a gmail", "compose email", "add a task"), do NOT use it as any field value.
Only extract actual content the user wants to use.
Keep dates and times exactly as the user wrote them (e.g. "tomorrow at 3pm", "26 dec").
For yes/no questions set true or false; omit the field if the user did not answer.`

// fieldDescriptions 字段说明，帮助模型理解要抽取的内容
var fieldDescriptions = map[string]string{
	"to_email":    "Recipient email address. Several addresses are comma separated.",
	"subject":     "Subject line of the email.",
	"body":        "Body text of the email, exactly what should be sent.",
	"task_title":  "Short title of the task.",
	"task_notes":  "Extra notes or details for the task.",
	"due_date":    "When the task is due, as written by the user.",
	"summary":     "Title of the meeting or event.",
	"start_time":  "When the meeting starts, as written by the user.",
	"end_time":    "When the meeting ends, as written by the user.",
	"add_meet":    "Whether to attach a Google Meet link.",
	"description": "Description of the meeting.",
	"location":    "Where the meeting takes place.",
	"query":       "What to search the web for.",
}

// Extractor 字段抽取服务：强制工具调用，失败时回退到正则
type Extractor struct {
	client ChatClient
	log    *slog.Logger
}

// NewExtractor 创建字段抽取服务
func NewExtractor(client ChatClient, log *slog.Logger) *Extractor {
	return &Extractor{client: client, log: log}
}

// Extract 抽取指定字段；没找到的字段不出现在结果中
func (e *Extractor) Extract(ctx context.Context, text string, fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return map[string]any{}, nil
	}
	args, err := e.client.CallTool(ctx, extractorPrompt, "Message: "+text, extractTool(fields))
	if err == nil {
		var raw map[string]any
		if err = sonic.UnmarshalString(ExtractJSON(args), &raw); err == nil {
			return clean(raw), nil
		}
		err = fmt.Errorf("parse tool arguments: %w", err)
	}

	e.log.Warn("llm extraction failed, falling back to regex", "error", err)
	if out := regexExtract(text, fields); len(out) > 0 {
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v", model.ErrExtractionFailed, err)
}

// extractTool 工具参数恰好是本次要抽取的字段
func extractTool(fields []string) *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo, len(fields))
	for _, f := range fields {
		desc := fieldDescriptions[f]
		if desc == "" {
			desc = "Value for " + f + "."
		}
		typ := schema.String
		if slot.KindOf(f) == slot.KindBoolean {
			typ = schema.Boolean
		}
		params[f] = &schema.ParameterInfo{Type: typ, Desc: desc}
	}
	return &schema.ToolInfo{
		Name:        extractToolName,
		Desc:        "Record the field values found in the user's message.",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

// clean 去掉空值；模型偶尔多给的字段原样保留，交由别名解析处理
func clean(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out[k] = s
			}
		default:
			out[k] = val
		}
	}
	return out
}

var (
	emailFindRE = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	subjectRE   = regexp.MustCompile(`(?i)subject[:\-]?\s*(.+?)(?:$|\s+body[:\-])`)
	bodyRE      = regexp.MustCompile(`(?i)body[:\-]?\s*(.+)`)
)

// regexExtract 模型不可用时的兜底：邮箱地址与 subject:/body: 标记
func regexExtract(text string, fields []string) map[string]any {
	out := map[string]any{}
	for _, f := range fields {
		switch f {
		case "to_email":
			if found := emailFindRE.FindAllString(text, -1); len(found) > 0 {
				out[f] = strings.Join(found, ", ")
			}
		case "subject":
			if m := subjectRE.FindStringSubmatch(text); m != nil {
				out[f] = strings.TrimSpace(m[1])
			}
		case "body":
			if m := bodyRE.FindStringSubmatch(text); m != nil {
				out[f] = strings.TrimSpace(m[1])
			}
		}
	}
	return out
}
