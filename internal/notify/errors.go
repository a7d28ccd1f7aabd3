package notify

import (
	"errors"
	"fmt"
)

// ErrRateLimitExhausted is wrapped by a DispatchError whose attempts were all
// rejected with a rate-limit response.
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// Kind distinguishes the two ways a dispatch can fail.
type Kind int

const (
	// RateLimitExhausted means every allowed attempt was rate limited.
	RateLimitExhausted Kind = iota + 1
	// Fatal means the channel reported a non-retryable failure.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case RateLimitExhausted:
		return "rate_limit_exhausted"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DispatchError is returned by Dispatcher.Send when a message could not be delivered.
type DispatchError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
