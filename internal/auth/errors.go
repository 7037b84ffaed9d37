package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Error kinds. Use errors.Is(err, auth.ErrInvalidGrant) to check.
var (
	ErrNotAuthenticated = errors.New("auth: not authenticated (run 'yfa auth')")
	ErrInvalidGrant     = errors.New("auth: grant rejected (re-authorization required)")
	ErrNetworkFailure   = errors.New("auth: token endpoint unreachable")
)

// Error wraps an error kind with the operation that produced it and the
// underlying cause. errors.Is matches both the kind and the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

func newError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// classifyExchangeError maps a token endpoint failure to an error kind.
// A 4xx OAuth error response means the grant itself was refused; anything
// else (transport failure, 5xx, cancellation) may succeed on a later try.
func classifyExchangeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrNetworkFailure
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		switch {
		case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
			return ErrNetworkFailure
		case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
			return ErrInvalidGrant
		}
	}

	return ErrNetworkFailure
}
