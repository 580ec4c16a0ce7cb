package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shrinkRetryDelay(t *testing.T) {
	t.Helper()
	orig := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = orig })
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"empty response", ErrEmptyResponse, true},
		{"malformed response", ErrMalformedResponse, true},
		{"wrapped malformed response", errors.Join(errors.New("call failed"), ErrMalformedResponse), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limit status", errors.New("googleapi: Error 429: quota exceeded"), true},
		{"resource exhausted", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"server error", errors.New("unexpected status 503 service unavailable"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"auth failure", errors.New("API key not valid"), false},
		{"bad request", errors.New("400 invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversAfterTransientFailure(t *testing.T) {
	shrinkRetryDelay(t)

	calls := 0
	err := withRetry(context.Background(), "test op", func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrEmptyResponse
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustionWrapsCollaboratorFailure(t *testing.T) {
	shrinkRetryDelay(t)

	calls := 0
	err := withRetry(context.Background(), "detect image 0", func(context.Context) error {
		calls++
		return ErrMalformedResponse
	})

	require.Error(t, err)
	assert.Equal(t, maxAttempts, calls)
	assert.ErrorIs(t, err, ErrCollaboratorFailure)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), "detect image 0 failed after 3 attempts")
}

func TestWithRetryNonRetryableFailsFast(t *testing.T) {
	authErr := errors.New("API key not valid")

	calls := 0
	err := withRetry(context.Background(), "test op", func(context.Context) error {
		calls++
		return authErr
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, authErr, err)
	assert.NotErrorIs(t, err, ErrCollaboratorFailure)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := withRetry(ctx, "test op", func(context.Context) error {
		calls++
		cancel()
		return ErrEmptyResponse
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
