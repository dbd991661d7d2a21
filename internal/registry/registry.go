// Package registry 维护意图到动作描述的静态映射，启动时一次性校验完整性。
package registry

import (
	"context"
	"fmt"
	"sort"

	"davinci-agent/internal/model"
)

// Invoker 动作调用：拿到凭证与完整、已校验的槽位后执行一次外部调用
type Invoker func(ctx context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error)

// Descriptor 动作描述
type Descriptor struct {
	// Name 意图名，如 gmail.compose
	Name string
	// Provider 凭证提供方（google、microsoft）；为空表示无需凭证
	Provider string
	// RequiredFields 必填字段，顺序即追问顺序，运行期不变
	RequiredFields []string
	// OptionalFields 可选字段：用户顺带给出时收下，从不追问
	OptionalFields []string
	// Prompts 每个必填字段的追问文案
	Prompts map[string]string
	// Success 生成成功确认语；为空时使用 Result.Summary
	Success func(fields map[string]string, result model.ActionResult) string
	Invoke  Invoker
}

// Prompt 返回字段的追问文案
func (d *Descriptor) Prompt(field string) string {
	return d.Prompts[field]
}

// Acknowledge 生成成功确认语
func (d *Descriptor) Acknowledge(fields map[string]string, result model.ActionResult) string {
	if d.Success != nil {
		return d.Success(fields, result)
	}
	if result.Summary != "" {
		return result.Summary
	}
	return fmt.Sprintf("Done: %s.", d.Name)
}

// Registry 意图注册表，构造后只读，可并发使用
type Registry struct {
	byName map[string]*Descriptor
	fields map[string]struct{}
}

// New 构建注册表并校验每个描述：名称唯一、字段不重复、必填字段都有追问文案、Invoke 非空
func New(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Descriptor, len(descs)),
		fields: make(map[string]struct{}),
	}
	for i := range descs {
		d := descs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor %d: name is required", i)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("descriptor %q: registered twice", d.Name)
		}
		if d.Invoke == nil {
			return nil, fmt.Errorf("descriptor %q: invoke is required", d.Name)
		}
		seen := make(map[string]struct{}, len(d.RequiredFields))
		for _, f := range d.RequiredFields {
			if f == "" {
				return nil, fmt.Errorf("descriptor %q: empty field name", d.Name)
			}
			if _, dup := seen[f]; dup {
				return nil, fmt.Errorf("descriptor %q: duplicate required field %q", d.Name, f)
			}
			seen[f] = struct{}{}
			if d.Prompts[f] == "" {
				return nil, fmt.Errorf("descriptor %q: no prompt for field %q", d.Name, f)
			}
			r.fields[f] = struct{}{}
		}
		for _, f := range d.OptionalFields {
			if f == "" {
				return nil, fmt.Errorf("descriptor %q: empty field name", d.Name)
			}
			if _, dup := seen[f]; dup {
				return nil, fmt.Errorf("descriptor %q: duplicate field %q", d.Name, f)
			}
			seen[f] = struct{}{}
			r.fields[f] = struct{}{}
		}
		// 复制字段列表，避免调用方事后修改
		d.RequiredFields = append([]string(nil), d.RequiredFields...)
		d.OptionalFields = append([]string(nil), d.OptionalFields...)
		r.byName[d.Name] = &d
	}
	return r, nil
}

// MustNew 同 New，校验失败时 panic；用于静态声明
func MustNew(descs ...Descriptor) *Registry {
	r, err := New(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup 查找意图；不存在说明不是槽位填充意图
func (r *Registry) Lookup(intent string) (*Descriptor, bool) {
	d, ok := r.byName[intent]
	return d, ok
}

// HasField 判断字段是否属于某个已注册意图
func (r *Registry) HasField(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// Names 返回全部意图名（排序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
