package panel

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyPushError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassUnknown},
		{"wrapped not found", fmt.Errorf("edit: %w", ErrPanelNotFound), ErrorClassNotFound},
		{"deadline", context.DeadlineExceeded, ErrorClassRetryable},
		{"canceled", fmt.Errorf("edit: %w", context.Canceled), ErrorClassRetryable},
		{"net timeout", timeoutErr{}, ErrorClassRetryable},
		{"404", statusErr(404), ErrorClassNotFound},
		{"429", fmt.Errorf("edit: %w", statusErr(429)), ErrorClassRetryable},
		{"502", statusErr(502), ErrorClassRetryable},
		{"403", statusErr(403), ErrorClassFatal},
		{"text timeout", errors.New("dial tcp: i/o timeout"), ErrorClassRetryable},
		{"text unknown message", errors.New("HTTP 404 Not Found, {\"message\": \"Unknown Message\"}"), ErrorClassNotFound},
		{"text missing access", errors.New("Missing Access"), ErrorClassFatal},
		{"other", errors.New("something odd"), ErrorClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPushError(tt.err); got != tt.want {
				t.Errorf("ClassifyPushError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	want := map[ErrorClass]string{
		ErrorClassNotFound:  "not_found",
		ErrorClassRetryable: "retryable",
		ErrorClassFatal:     "fatal",
		ErrorClassUnknown:   "unknown",
	}
	for c, s := range want {
		if c.String() != s {
			t.Errorf("%d.String() = %q, want %q", c, c.String(), s)
		}
	}
}
