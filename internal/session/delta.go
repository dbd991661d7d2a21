package session

import (
	"fmt"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Delta 计算两次槽位数据之间的 JSON Merge Patch（RFC 7386）；无变化时返回空串
func Delta(before, after map[string]string) (string, error) {
	if before == nil {
		before = map[string]string{}
	}
	if after == nil {
		after = map[string]string{}
	}
	a, err := sonic.Marshal(before)
	if err != nil {
		return "", fmt.Errorf("marshal before: %w", err)
	}
	b, err := sonic.Marshal(after)
	if err != nil {
		return "", fmt.Errorf("marshal after: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return "", fmt.Errorf("create merge patch: %w", err)
	}
	if string(patch) == "{}" {
		return "", nil
	}
	return string(patch), nil
}
