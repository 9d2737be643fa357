package panel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrPanelNotFound means the panel channel or message can no longer be
// resolved on the chat platform. Publishers wrap it.
var ErrPanelNotFound = errors.New("panel message not found")

// ErrNoChannel is returned by Setup without a target channel.
var ErrNoChannel = errors.New("setup requires a channel")

// HTTPStatusError is implemented by publisher errors that carry the
// platform's HTTP status.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// ErrorClass groups push failures for logging and metrics.
type ErrorClass int

const (
	// ErrorClassNotFound: the panel is gone; only a new setup helps.
	ErrorClassNotFound ErrorClass = iota
	// ErrorClassRetryable: transient; the next tick will likely succeed.
	ErrorClassRetryable
	// ErrorClassFatal: the platform rejected the request (auth, permissions, payload).
	ErrorClassFatal
	// ErrorClassUnknown: could not be determined.
	ErrorClassUnknown
)

// String returns the metric label for the class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassNotFound:
		return "not_found"
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyPushError sorts a publisher error into an ErrorClass.
//
// Typed signals win (ErrPanelNotFound, context errors, net timeouts, HTTP
// status); message text is the fallback for errors that arrive as strings.
func ClassifyPushError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrPanelNotFound) {
		return ErrorClassNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassRetryable
	}
	var se HTTPStatusError
	if errors.As(err, &se) {
		switch code := se.HTTPStatus(); {
		case code == http.StatusNotFound:
			return ErrorClassNotFound
		case code == http.StatusTooManyRequests, code >= 500:
			return ErrorClassRetryable
		case code >= 400:
			return ErrorClassFatal
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"timeout", "connection reset", "connection refused", "eof", "temporarily unavailable", "rate limit"} {
		if strings.Contains(msg, p) {
			return ErrorClassRetryable
		}
	}
	for _, p := range []string{"unknown message", "unknown channel"} {
		if strings.Contains(msg, p) {
			return ErrorClassNotFound
		}
	}
	for _, p := range []string{"missing access", "missing permissions", "unauthorized", "forbidden"} {
		if strings.Contains(msg, p) {
			return ErrorClassFatal
		}
	}
	return ErrorClassUnknown
}
