package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNetwork marks a feed fetch that failed in transport, returned a non-2xx
// status, timed out, or carried a body that could not be decoded.
var ErrNetwork = errors.New("feed network error")

// RateLimitedError is returned by a messaging channel when the provider
// rejected the send with HTTP 429. RetryAfter is the provider's hint, zero
// when none was given.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// IsRateLimited reports whether err carries a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
