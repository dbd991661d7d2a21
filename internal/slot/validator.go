// Package slot 负责单个槽位值的校验、归一化与别名解析，不持有任何会话状态。
package slot

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind 字段类型，决定校验规则
type Kind int

const (
	KindText Kind = iota
	KindEmail
	KindBoolean
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindEmail:
		return "email"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// fieldKinds 已知字段的类型表；未列出的字段按文本处理
var fieldKinds = map[string]Kind{
	"to_email":    KindEmail,
	"subject":     KindText,
	"body":        KindText,
	"task_title":  KindText,
	"task_notes":  KindText,
	"summary":     KindText,
	"description": KindText,
	"location":    KindText,
	"query":       KindText,
	"add_meet":    KindBoolean,
	"due_date":    KindTimestamp,
	"start_time":  KindTimestamp,
	"end_time":    KindTimestamp,
}

// KindOf 返回字段类型
func KindOf(field string) Kind {
	return fieldKinds[field]
}

var emailRE = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.\w+$`)

// placeholders 触发短语与跳过词：用户只说了「发封邮件」时不能把它当成正文或主题
var placeholders = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"send an email", "send email", "send a mail", "send mail", "send a gmail", "send gmail",
		"compose email", "compose an email", "compose a gmail", "write an email", "write email",
		"email", "gmail", "outlook", "mail",
		"add a task", "add task", "create task", "create a task", "new task", "add google task",
		"make a task", "task", "todo", "add todo", "add reminder",
		"schedule a meeting", "schedule meeting", "create event", "create an event", "meeting",
		"search", "web search", "search the web",
		"skip", "none", "no", "n/a", "na", "null", "nothing",
	} {
		placeholders[p] = struct{}{}
	}
}

// IsPlaceholder 判断文本是否只是泛化的触发短语或跳过词
func IsPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Validator 槽位值校验器。时间类字段依赖 now 计算相对日期
type Validator struct {
	now func() time.Time
}

// NewValidator 创建校验器；now 为 nil 时使用 time.Now
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate 判断提取到的值是否可接受
func (v *Validator) Validate(field string, value any) bool {
	_, ok := v.Check(field, value)
	return ok
}

// Check 校验并返回归一化后的值：邮箱去空白、布尔为 true/false、时间为 RFC3339。
// 校验失败时返回 ("", false)，从不填充默认值。
func (v *Validator) Check(field string, value any) (string, bool) {
	if value == nil {
		return "", false
	}
	switch KindOf(field) {
	case KindEmail:
		s, ok := value.(string)
		if !ok {
			return "", false
		}
		return checkEmails(s)
	case KindBoolean:
		return checkBool(value)
	case KindTimestamp:
		s, ok := value.(string)
		if !ok {
			return "", false
		}
		t, ok := ParseTime(s, v.now())
		if !ok {
			return "", false
		}
		return t.Format(time.RFC3339), true
	default:
		s := strings.TrimSpace(stringify(value))
		if s == "" || IsPlaceholder(s) {
			return "", false
		}
		return s, true
	}
}

func checkEmails(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !emailRE.MatchString(p) {
			return "", false
		}
		out = append(out, p)
	}
	return strings.Join(out, ", "), true
}

func checkBool(value any) (string, bool) {
	switch b := value.(type) {
	case bool:
		if b {
			return "true", true
		}
		return "false", true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return "true", true
		case "false":
			return "false", true
		}
	}
	return "", false
}

func stringify(value any) string {
	switch x := value.(type) {
	case string:
		return x
	case bool:
		// 布尔值不是有效的文本内容
		return ""
	default:
		return fmt.Sprint(x)
	}
}
