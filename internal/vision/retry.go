package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxAttempts is the total call budget per image, including the first try.
const maxAttempts = 3

// retryBaseDelay is multiplied by the attempt number, so delays grow
// linearly: 2s, 4s. Variable so tests can shrink it.
var retryBaseDelay = 2 * time.Second

// isRetryable reports whether an error is worth retrying. Rate limits,
// upstream 5xx and connection-level failures are transient; structurally
// bad model output is treated the same way since a fresh generation often
// parses fine. Auth and bad-request errors fail immediately.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrMalformedResponse) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "RESOURCE_EXHAUSTED") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "bad gateway") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return true
	}

	return false
}

// withRetry runs fn up to maxAttempts times, sleeping retryBaseDelay × attempt
// between tries. Non-retryable errors are returned immediately without
// consuming the budget. Exhausting the budget wraps the last error in
// ErrCollaboratorFailure.
func withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("operation", operation).Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := retryBaseDelay * time.Duration(attempt)
		log.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retryable failure, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w: %w", operation, maxAttempts, ErrCollaboratorFailure, lastErr)
}
