package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

func transient() error {
	return &CallError{Kind: KindTransient, Model: "m", Err: io.ErrUnexpectedEOF}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 5*time.Second, p.Backoff(3))
}

func TestRetryPolicyRecoversAfterTwoTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), nil, func(context.Context) error {
		calls++
		return transient()
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRetryPolicyDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	authErr := &CallError{Kind: KindPermanent, Model: "m", Err: errors.New("401 unauthorized")}
	err := fastPolicy().Do(context.Background(), nil, func(context.Context) error {
		calls++
		return authErr
	})
	assert.Same(t, authErr, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2}

	calls := 0
	err := policy.Do(ctx, nil, func(context.Context) error {
		calls++
		cancel()
		return transient()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
