package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"session init", &SessionInitError{Err: errors.New("no chromium")}, "session_init"},
		{"wrapped init", fmt.Errorf("open: %w", &SessionInitError{Err: errors.New("x")}), "session_init"},
		{"navigation", &NavigationError{URL: "https://x", StatusCode: 500}, "navigation"},
		{"blocked", &NavigationError{URL: "https://x", Blocked: true}, "blocked"},
		{"timeout", &NavigationError{URL: "https://x", Err: context.DeadlineExceeded}, "timeout"},
		{"other", errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestNavigationErrorMessage(t *testing.T) {
	assert.Contains(t, (&NavigationError{URL: "u", Blocked: true}).Error(), "blocked")
	assert.Contains(t, (&NavigationError{URL: "u", StatusCode: 404}).Error(), "404")
	assert.Contains(t, (&NavigationError{URL: "u", Err: errors.New("reset")}).Error(), "reset")
}
