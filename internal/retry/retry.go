// Package retry provides bounded retries with exponential backoff and jitter
// for calls to external dependencies (vision models, embedding APIs, storage).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Class partitions errors into retry behavior.
type Class int

const (
	// Retryable errors are transient: rate limits, timeouts, 5xx-equivalent
	// server errors, connection resets.
	Retryable Class = iota
	// Fatal errors will not improve on retry: malformed input, taxonomy
	// violations, auth failures after refresh, 4xx-equivalent client errors.
	Fatal
)

// Classifier maps an error to a Class.
type Classifier func(err error) Class

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff base. The delay before attempt n (1-indexed)
	// is BaseDelay * 2^(n-1) plus uniform jitter in [0, BaseDelay).
	BaseDelay time.Duration
	// Classify decides whether a failure is worth another attempt.
	// Nil means DefaultClassifier.
	Classify Classifier
}

// DefaultPolicy matches the pipeline-wide defaults: 3 attempts, 1s base.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.Classify == nil {
		p.Classify = DefaultClassifier
	}
	return p
}

// Delay returns the backoff before attempt n (1-indexed, n >= 2).
// Exposed so callers can reason about schedules in tests.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	backoff := base << uint(attempt-2) // base * 2^(n-2) before the n-th attempt
	jitter := time.Duration(rand.Int63n(int64(base)))
	return backoff + jitter
}

// FatalError marks err as never worth retrying. Classifiers built with
// DefaultClassifier treat it as Fatal regardless of the underlying cause.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Permanent wraps err so the executor propagates it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// transientMarkers are substrings of provider error messages that indicate a
// transient condition. Provider SDKs flatten HTTP status into message text,
// so string matching is the common denominator across them.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"status 429",
	"status code: 429",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"overloaded",
}

// DefaultClassifier treats rate limits, timeouts, connection errors, and
// 5xx-equivalent failures as Retryable; everything else is Fatal.
func DefaultClassifier(err error) Class {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Retryable
		}
	}
	return Fatal
}

// StatusClassifier classifies by HTTP status code for callers that carry one.
func StatusClassifier(status int) Class {
	if status == http.StatusTooManyRequests || status >= 500 {
		return Retryable
	}
	return Fatal
}

// Do runs op under the policy, sleeping between attempts. It returns the
// result of the first success, or the last observed error once attempts are
// exhausted or a fatal error is seen. The returned attempt count is the number
// of attempts actually consumed, for callers that account attempts per record.
func Do[T any](ctx context.Context, name string, policy Policy, op func(ctx context.Context) (T, error)) (T, int, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt)
			slog.Debug("retrying operation", "op", name, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, attempt - 1, ctx.Err()
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if policy.Classify(err) == Fatal {
			slog.Warn("operation failed fatally", "op", name, "attempt", attempt, "error", err)
			return zero, attempt, err
		}
		slog.Warn("operation failed, will retry", "op", name, "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
	}

	return zero, policy.MaxAttempts, fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}
