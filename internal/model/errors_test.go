package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestActionErrorIs(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := fmt.Errorf("invoke: %w", &ActionError{Action: "gmail.compose", Err: cause})
	if !errors.Is(err, ErrActionFailed) {
		t.Error("errors.Is(err, ErrActionFailed) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if errors.Is(err, ErrMissingCredentials) {
		t.Error("errors.Is(err, ErrMissingCredentials) = true, want false")
	}
}

func TestMissingCredentialsErrorIs(t *testing.T) {
	err := fmt.Errorf("get token: %w", &MissingCredentialsError{Provider: "google"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Error("errors.Is(err, ErrMissingCredentials) = false, want true")
	}
	var mc *MissingCredentialsError
	if !errors.As(err, &mc) || mc.Provider != "google" {
		t.Errorf("errors.As provider = %v, want google", mc)
	}
}
