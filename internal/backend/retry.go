package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryWithBackoff runs fn up to maxAttempts times, doubling the wait after
// each retryable failure. Client errors (4xx) are returned immediately.
func (c *Client) RetryWithBackoff(ctx context.Context, fn func() error, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	wait := c.retryBackoff

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if i == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}

	if maxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError
}
