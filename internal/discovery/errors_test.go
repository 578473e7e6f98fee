package discovery

import (
	"errors"
	"strings"
	"testing"

	"github.com/muurk/dantescan/internal/provider"
)

func TestNewProviderError_CarriesCode(t *testing.T) {
	cause := provider.NewError("start browse", -42, nil)
	err := NewProviderError("failed to start browse", cause)

	if err.Code != -42 {
		t.Errorf("Code = %d, want -42", err.Code)
	}
	if !errors.Is(err, ErrProvider) {
		t.Error("errors.Is(err, ErrProvider) = false, want true")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = true, want false")
	}
	if !strings.Contains(err.Error(), "code -42") {
		t.Errorf("Error() = %q, should mention the code", err.Error())
	}

	var pErr *provider.Error
	if !errors.As(err, &pErr) {
		t.Error("provider error should be reachable through Unwrap")
	}
}

func TestNewProviderError_PlainError(t *testing.T) {
	err := NewProviderError("open", errors.New("boom"))
	if err.Code != provider.CodeFailed {
		t.Errorf("Code = %d, want %d", err.Code, provider.CodeFailed)
	}
}

func TestNewIndexError(t *testing.T) {
	err := NewIndexError(5, 3)

	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Error("errors.Is(err, ErrIndexOutOfRange) = false, want true")
	}
	if !strings.Contains(err.Error(), "available: 0-2") {
		t.Errorf("Error() = %q, should mention the valid range", err.Error())
	}
}

func TestError_IsIgnoresOtherTypes(t *testing.T) {
	err := NewTimeoutError("slow")
	if errors.Is(err, errors.New("Timeout: slow")) {
		t.Error("Is should only match *Error targets")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = false, want true")
	}
}
