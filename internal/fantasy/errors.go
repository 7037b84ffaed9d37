package fantasy

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Use errors.Is(err, fantasy.ErrNotFound) to check.
var (
	ErrUnauthenticated  = errors.New("fantasy: unauthenticated")
	ErrBadRequest       = errors.New("fantasy: bad request")
	ErrForbidden        = errors.New("fantasy: forbidden")
	ErrNotFound         = errors.New("fantasy: not found")
	ErrOther4xx         = errors.New("fantasy: client error")
	ErrRetriesExhausted = errors.New("fantasy: retries exhausted")
)

// statusYahooThrottled is the non-standard status Yahoo returns when it
// throttles a client ("Request denied").
const statusYahooThrottled = 999

// APIError is the single failure type returned by Client.Request. Kind is
// one of the sentinels above; StatusCode is the last HTTP status seen (0
// when the last attempt failed below HTTP).
type APIError struct {
	StatusCode int
	Attempts   int
	Message    string
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.StatusCode == 0 {
		return fmt.Sprintf("%v (attempts: %d): %s", e.Kind, e.Attempts, msg)
	}

	return fmt.Sprintf("%v: HTTP %d (attempts: %d): %s", e.Kind, e.StatusCode, e.Attempts, msg)
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// classifyStatus maps a terminal HTTP status to an error kind.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthenticated
	case code == http.StatusBadRequest:
		return ErrBadRequest
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case isRetryable(code):
		return ErrRetriesExhausted
	default:
		// Other 4xx, plus unfollowed 3xx which we cannot act on either.
		return ErrOther4xx
	}
}

// isThrottle reports whether code means the client is sending too fast.
func isThrottle(code int) bool {
	return code == http.StatusTooManyRequests || code == statusYahooThrottled
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch {
	case isThrottle(code):
		return true
	case code >= http.StatusInternalServerError && code < 600:
		return true
	default:
		return false
	}
}
