package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidConfig, "test message: %s", "value")

	if err.Code != ErrCodeInvalidConfig {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "INVALID_CONFIG: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeNetwork, cause, "failed to fetch")

	if err.Code != ErrCodeNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNetwork)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	// Test Unwrap
	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Test errors.Is with wrapped error
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	httpErr := &HTTPError{Status: 404, URL: "/content/1"}

	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeTimeout, "test"),
			code:     ErrCodeTimeout,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeTimeout, "test"),
			code:     ErrCodeNetwork,
			expected: false,
		},
		{
			name:     "outer code",
			err:      Wrap(ErrCodeAuthenticationFailed, New(ErrCodeTimeout, "inner"), "outer"),
			code:     ErrCodeAuthenticationFailed,
			expected: true,
		},
		{
			name:     "inner code",
			err:      Wrap(ErrCodeAuthenticationFailed, New(ErrCodeTimeout, "inner"), "outer"),
			code:     ErrCodeTimeout,
			expected: true,
		},
		{
			name:     "typed http error",
			err:      httpErr,
			code:     ErrCodeHTTP,
			expected: true,
		},
		{
			name:     "http error inside expansion error",
			err:      &ExpansionError{Field: "images", LinkID: 1, Err: httpErr},
			code:     ErrCodeHTTP,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("context: %w", New(ErrCodeCancelled, "stop")),
			code:     ErrCodeCancelled,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidConfig,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidConfig,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeUnsupportedMethod, "test"),
			expected: ErrCodeUnsupportedMethod,
		},
		{
			name:     "expansion error",
			err:      &ExpansionError{Field: "form", LinkID: 3, Err: errors.New("boom")},
			expected: ErrCodeExpansionFailed,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidConfig, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHTTPError(t *testing.T) {
	t.Run("with status text", func(t *testing.T) {
		err := &HTTPError{Status: 503, StatusText: "Service Unavailable", URL: "/content/1"}
		expected := "HTTP_ERROR: /content/1 (503 Service Unavailable)"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("without status text", func(t *testing.T) {
		err := &HTTPError{Status: 418, URL: "/x"}
		expected := "HTTP_ERROR: /x (418)"
		if err.Error() != expected {
			t.Errorf("Error() = %v, want %v", err.Error(), expected)
		}
	})

	t.Run("errors.As", func(t *testing.T) {
		var target *HTTPError
		wrapped := fmt.Errorf("get: %w", &HTTPError{Status: 401})
		if !errors.As(wrapped, &target) || target.Status != 401 {
			t.Errorf("errors.As did not find HTTPError in %v", wrapped)
		}
	})
}

func TestExpansionError(t *testing.T) {
	cause := errors.New("timeout")
	err := &ExpansionError{LinkID: 7, Err: cause}

	if err.Error() != "EXPANSION_FAILED: <root>[7]: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("ExpansionError should unwrap to its cause")
	}

	err.Field = "images"
	if err.Error() != "EXPANSION_FAILED: images[7]: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestJoinedErrors(t *testing.T) {
	joined := errors.Join(
		errors.New("plain"),
		&ExpansionError{Field: "items", LinkID: 1, Err: New(ErrCodeTimeout, "slow")},
		&HTTPError{Status: 500},
	)

	for _, code := range []Code{ErrCodeExpansionFailed, ErrCodeTimeout, ErrCodeHTTP} {
		if !Is(joined, code) {
			t.Errorf("Is(joined, %s) = false", code)
		}
	}
	if Is(joined, ErrCodeCancelled) {
		t.Error("Is(joined, CANCELLED) = true")
	}
	if got := GetCode(joined); got != ErrCodeExpansionFailed {
		t.Errorf("GetCode(joined) = %s, want first coded branch", got)
	}
}
