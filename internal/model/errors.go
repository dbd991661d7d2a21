package model

import (
	"errors"
	"fmt"
)

var (
	ErrLLMUnavailable     = errors.New("llm service unavailable")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrProviderDisabled   = errors.New("provider integration disabled")
	ErrActionFailed       = errors.New("action execution failed")
	ErrExtractionFailed   = errors.New("field extraction failed")
	ErrUnknownIntent      = errors.New("intent not registered")
	ErrInvalidParams      = errors.New("invalid action params")
)

// ActionError 动作调用失败（远端错误、超时、配额等），errors.Is(err, ErrActionFailed) 为真
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() []error {
	return []error{ErrActionFailed, e.Err}
}

// MissingCredentialsError 指明缺少哪个 provider 的授权，errors.Is(err, ErrMissingCredentials) 为真
type MissingCredentialsError struct {
	Provider string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing credentials for %s", e.Provider)
}

func (e *MissingCredentialsError) Is(target error) bool {
	return target == ErrMissingCredentials
}
