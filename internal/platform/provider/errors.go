package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "VALIDATION"
	CategoryRateLimit   ErrorCategory = "RATE_LIMIT"
	CategoryNetwork     ErrorCategory = "NETWORK"
	CategoryProviderAPI ErrorCategory = "PROVIDER_API"
	CategoryDatabase    ErrorCategory = "DATABASE"
)

// Error is a provider-call failure carrying its classification. The retry
// driver keys off Category and Retryable, never off a concrete SDK type.
type Error struct {
	Category  ErrorCategory
	Retryable bool
	// AuthFailure marks a PROVIDER_API error caused by bad credentials or
	// missing permission; these are never retried.
	AuthFailure bool
	Message     string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(cat ErrorCategory, retryable bool, msg string, err error) *Error {
	return &Error{Category: cat, Retryable: retryable, Message: msg, Err: err}
}

// Classify maps an arbitrary error to its category and retryability.
// Unknown errors default to PROVIDER_API retryable: transient provider
// trouble is the common case, permanent failures are expected to arrive
// pre-classified.
func Classify(err error) (ErrorCategory, bool) {
	var pErr *Error
	if errors.As(err, &pErr) {
		if pErr.AuthFailure {
			return pErr.Category, false
		}
		switch pErr.Category {
		case CategoryValidation:
			return CategoryValidation, false
		case CategoryRateLimit, CategoryNetwork, CategoryDatabase:
			return pErr.Category, true
		default:
			return pErr.Category, pErr.Retryable
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork, true
	}

	return CategoryProviderAPI, true
}
