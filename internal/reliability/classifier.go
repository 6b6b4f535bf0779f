package reliability

import (
	"context"
	"time"
)

// IsRetryableHTTPStatus classifies retryable upstream HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableLiveErrorCode reports whether a live session failure is worth
// retrying from the client by reopening the session.
func IsRetryableLiveErrorCode(code string) bool {
	switch code {
	case "connect_failed", "remote_closed", "rate_limited", "provider_unavailable":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Retry runs fn up to attempts times while retryable(err) holds, sleeping
// ExponentialBackoff between tries. It returns the last error.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts-1 || retryable == nil || !retryable(err) {
			return err
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, base, cap))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
