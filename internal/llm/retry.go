package llm

import (
	"context"
	"errors"
	"time"
)

// ErrAuth indicates a missing or invalid backend credential. Fatal for
// the whole pipeline; never retried.
var ErrAuth = errors.New("llm authentication failed")

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

// retryWithBackoff retries fn on rate limits with exponential backoff.
// Auth errors and other failures return immediately.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrAuth) {
			return lastErr
		}
		var rl *rateLimitError
		if !errors.As(lastErr, &rl) {
			return lastErr
		}
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
