package slot

import "fmt"

// Alias 提取器可能使用的别名键 From 对应的规范字段 To
type Alias struct {
	From string
	To   string
}

// AliasTable 有序别名表；同一规范字段的多个别名按声明顺序取第一个命中的
type AliasTable []Alias

// DefaultAliases 默认别名表
var DefaultAliases = AliasTable{
	{From: "recipient", To: "to_email"},
	{From: "to", To: "to_email"},
	{From: "email", To: "to_email"},
	{From: "to_address", To: "to_email"},
	{From: "message", To: "body"},
	{From: "content", To: "body"},
	{From: "text", To: "body"},
	{From: "title", To: "task_title"},
	{From: "details", To: "task_notes"},
	{From: "notes", To: "task_notes"},
	{From: "due", To: "due_date"},
	{From: "deadline", To: "due_date"},
	{From: "date", To: "due_date"},
	{From: "title", To: "summary"},
	{From: "name", To: "summary"},
	{From: "start", To: "start_time"},
	{From: "from", To: "start_time"},
	{From: "end", To: "end_time"},
	{From: "until", To: "end_time"},
	{From: "meet", To: "add_meet"},
	{From: "meeting_link", To: "add_meet"},
	{From: "google_meet", To: "add_meet"},
	{From: "search", To: "query"},
	{From: "q", To: "query"},
}

// Resolve 为仍缺失的规范字段查找别名值。只在提取结果里没有规范字段本身时生效；
// 返回值仍需经过 Validator 校验。
func (t AliasTable) Resolve(field string, extracted map[string]any) (any, bool) {
	if v, ok := extracted[field]; ok && v != nil {
		return nil, false
	}
	return t.Lookup(field, extracted)
}

// Lookup 按声明顺序返回第一个出现在提取结果中的别名值，不看规范字段本身。
// 规范字段的值校验失败时由调用方改用它。
func (t AliasTable) Lookup(field string, extracted map[string]any) (any, bool) {
	for _, a := range t {
		if a.To != field {
			continue
		}
		if v, ok := extracted[a.From]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ValidateTargets 启动时校验：每个别名的目标都必须是某个已注册意图的字段
func (t AliasTable) ValidateTargets(known func(field string) bool) error {
	seen := make(map[Alias]struct{}, len(t))
	for i, a := range t {
		if a.From == "" || a.To == "" {
			return fmt.Errorf("alias %d: from and to are required", i)
		}
		if a.From == a.To {
			return fmt.Errorf("alias %d: %q maps to itself", i, a.From)
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("alias %d: duplicate entry %s -> %s", i, a.From, a.To)
		}
		seen[a] = struct{}{}
		if !known(a.To) {
			return fmt.Errorf("alias %s -> %s: target is not a field of any registered intent", a.From, a.To)
		}
	}
	return nil
}

// Targets 返回出现在表中的全部规范字段
func (t AliasTable) Targets() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range t {
		if _, ok := seen[a.To]; !ok {
			seen[a.To] = struct{}{}
			out = append(out, a.To)
		}
	}
	return out
}
