package galaxy

import (
	"errors"
	"fmt"
	"time"
)

// TransientError wraps a failure worth retrying, such as a 5xx
// response or a network error.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient api error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient api error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError wraps a failure that retrying cannot fix, such as a
// 4xx response or a malformed response body.
type TerminalError struct {
	StatusCode int
	Err        error
}

func (e *TerminalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("terminal api error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("terminal api error: %v", e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal lets callers classify the error without importing this
// package, via errors.As against an interface target.
func (e *TerminalError) Terminal() bool { return true }

// RateLimitError is a 429 response. RetryAfter is zero when the
// server gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// ExhaustedError reports that the retry budget ran out.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsTerminal reports whether err should not be retried.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var limited *RateLimitError
	return errors.As(err, &limited)
}
