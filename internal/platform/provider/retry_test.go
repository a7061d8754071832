package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	res, err := WithRetry(context.Background(), zap.NewNop().Sugar(), fastPolicy(), "sync",
		func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", newError(CategoryNetwork, true, "connection reset", nil)
			}
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsBudgetAndReturnsTypedError(t *testing.T) {
	var attempts int
	_, err := WithRetry(context.Background(), zap.NewNop().Sugar(), fastPolicy(), "sync",
		func(ctx context.Context) (string, error) {
			attempts++
			return "", newError(CategoryRateLimit, true, "too many requests", nil)
		})
	require.Equal(t, 3, attempts)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, CategoryRateLimit, pErr.Category)
	require.True(t, pErr.Retryable)
}

func TestWithRetry_ValidationIsNeverRetried(t *testing.T) {
	var attempts int
	_, err := WithRetry(context.Background(), zap.NewNop().Sugar(), fastPolicy(), "sync",
		func(ctx context.Context) (string, error) {
			attempts++
			return "", newError(CategoryValidation, false, "no such account", nil)
		})
	require.Equal(t, 1, attempts)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, CategoryValidation, pErr.Category)
	require.False(t, pErr.Retryable)
}

func TestWithRetry_AuthFailureIsNeverRetried(t *testing.T) {
	var attempts int
	authErr := newError(CategoryProviderAPI, false, "invalid api key", nil)
	authErr.AuthFailure = true

	_, err := WithRetry(context.Background(), zap.NewNop().Sugar(), fastPolicy(), "sync",
		func(ctx context.Context) (string, error) {
			attempts++
			return "", authErr
		})
	require.Equal(t, 1, attempts)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	require.Equal(t, CategoryProviderAPI, pErr.Category)
}

func TestClassify_PlainErrorsDefaultToProviderAPI(t *testing.T) {
	cat, retryable := Classify(errors.New("something odd"))
	require.Equal(t, CategoryProviderAPI, cat)
	require.True(t, retryable)
}

func TestClassify_DeadlineIsNetwork(t *testing.T) {
	cat, retryable := Classify(context.DeadlineExceeded)
	require.Equal(t, CategoryNetwork, cat)
	require.True(t, retryable)
}
