// Package notify delivers alert text through a messaging channel, retrying
// with exponential backoff while the provider reports rate limiting.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/quake-alert-service/internal/domain"
	"github.com/couchcryptid/quake-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Channel is the messaging provider's broadcast primitive. Rate limiting must
// be reported as *domain.RateLimitedError; any other error is not retried.
type Channel interface {
	Broadcast(ctx context.Context, text string) error
}

// Options tunes the retry policy.
type Options struct {
	MaxRetries int           // total attempts, including the first
	BaseDelay  time.Duration // wait after the first rate-limited attempt; doubles each time
}

// Dispatcher sends messages with retry on rate limiting.
type Dispatcher struct {
	channel    Channel
	maxRetries int
	baseDelay  time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a Dispatcher. A nil clock uses real time.
func New(channel Channel, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Dispatcher{
		channel:    channel,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Send broadcasts text. It returns (false, nil) without contacting the
// channel when text is blank, (true, nil) on the first accepted attempt, and
// a *DispatchError once retries are exhausted or a non-retryable failure occurs.
// Cancelling ctx during a backoff wait returns ctx.Err().
func (d *Dispatcher) Send(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		d.metrics.Dispatches.WithLabelValues("skipped").Inc()
		d.logger.Warn("refusing to send blank message")
		return false, nil
	}

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		d.metrics.DispatchAttempts.Inc()

		err := d.channel.Broadcast(ctx, text)
		if err == nil {
			d.metrics.Dispatches.WithLabelValues("success").Inc()
			d.logger.Info("message broadcast", "attempt", attempt+1, "preview", preview(text))
			return true, nil
		}

		rl, limited := domain.IsRateLimited(err)
		if !limited {
			d.metrics.Dispatches.WithLabelValues(Fatal.String()).Inc()
			d.logger.Error("broadcast failed", "attempt", attempt+1, "error", err)
			return false, &DispatchError{Kind: Fatal, Attempts: attempt + 1, Err: err}
		}

		d.metrics.DispatchRateLimited.Inc()
		if attempt == d.maxRetries-1 {
			d.metrics.Dispatches.WithLabelValues(RateLimitExhausted.String()).Inc()
			d.logger.Error("broadcast rate limited on every attempt", "attempts", d.maxRetries, "error", err)
			return false, &DispatchError{
				Kind:     RateLimitExhausted,
				Attempts: d.maxRetries,
				Err:      fmt.Errorf("%w: %w", ErrRateLimitExhausted, err),
			}
		}

		wait := retryWait(d.baseDelay, attempt, rl.RetryAfter)
		d.logger.Warn("broadcast rate limited, backing off", "attempt", attempt+1, "wait", wait)
		if err := d.sleep(ctx, wait); err != nil {
			return false, err
		}
	}

	// Unreachable: the loop returns on the last attempt.
	return false, &DispatchError{Kind: RateLimitExhausted, Attempts: d.maxRetries, Err: ErrRateLimitExhausted}
}

// Backoff returns base * 2^attempt for a zero-based attempt index,
// saturating at the largest Duration instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return base
	}
	if attempt >= 63 || base > time.Duration(math.MaxInt64)>>attempt {
		return time.Duration(math.MaxInt64)
	}
	return base << attempt
}

// retryWait is the computed backoff, raised to the provider's hint when the hint is longer.
func retryWait(base time.Duration, attempt int, hint time.Duration) time.Duration {
	wait := Backoff(base, attempt)
	if hint > wait {
		return hint
	}
	return wait
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	timer := d.clock.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func preview(text string) string {
	const n = 50
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
