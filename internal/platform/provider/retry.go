package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds the retry loop. MaxRetries is the total number of
// attempts; InitialBackoff doubles after every failed attempt.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 200 * time.Millisecond
	}
	return p
}

// WithRetry drives op with bounded exponential backoff. Retryable
// classifications (NETWORK, RATE_LIMIT, DATABASE, transient PROVIDER_API)
// are retried up to MaxRetries attempts; VALIDATION and auth failures are
// surfaced immediately. The final failure is a typed *Error carrying the
// classification.
func WithRetry[T any](ctx context.Context, log *zap.SugaredLogger, p RetryPolicy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		category, retryable := Classify(err)
		if !retryable {
			return zero, asTypedError(category, false, name, err)
		}
		if attempt == p.MaxRetries {
			break
		}

		backoff := p.InitialBackoff << (attempt - 1)
		log.Warnw("provider call failed, retrying",
			"op", name, "attempt", attempt, "category", string(category),
			"backoff", backoff.String(), "err", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, asTypedError(CategoryNetwork, true, name, ctx.Err())
		}
	}

	category, _ := Classify(lastErr)
	return zero, asTypedError(category, true, name, lastErr)
}

func asTypedError(cat ErrorCategory, retryable bool, name string, err error) error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return err
	}
	return newError(cat, retryable, fmt.Sprintf("%s failed", name), err)
}
