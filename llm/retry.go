package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// RetryPolicy controls WithRetry. Attempt i (0-based) waits RateLimitWaits[i] or ServerErrorWaits[i]
// before retrying; MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts      int
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second},
		ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
	}
}

type retryingGenerator struct {
	next   Generator
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps g so rate-limit and server errors are retried per policy.
// Other failures (auth, malformed output, cancellation) return immediately.
func WithRetry(g Generator, policy RetryPolicy) Generator {
	if policy.MaxAttempts <= 1 {
		return g
	}
	return retryingGenerator{next: g, policy: policy, sleep: sleepContext}
}

func (r retryingGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		var waits []time.Duration
		switch {
		case isRateLimitError(err):
			waits = r.policy.RateLimitWaits
		case isServerError(err):
			waits = r.policy.ServerErrorWaits
		default:
			return "", err
		}
		if err := r.sleep(ctx, waitFor(waits, attempt)); err != nil {
			return "", fmt.Errorf("%w: %w", ErrUpstreamModel, err)
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

func waitFor(waits []time.Duration, attempt int) time.Duration {
	if len(waits) == 0 {
		return 0
	}
	if attempt >= len(waits) {
		return waits[len(waits)-1]
	}
	return waits[attempt]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	if code := statusCode(err); code >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
