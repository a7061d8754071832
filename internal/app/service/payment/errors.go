package payment

import "errors"

var (
	// ErrPaymentAlreadyExists is the completion guard rejection: a terminal
	// payment already satisfies the attendance obligation. A business
	// decision, not a failure state; never retryable.
	ErrPaymentAlreadyExists = errors.New("payment already exists for attendance")

	// ErrConcurrentUpdate is an optimistic-lock conflict. The caller must
	// re-read and retry the whole operation, not just the write.
	ErrConcurrentUpdate = errors.New("payment was concurrently updated")

	ErrPaymentNotFound = errors.New("payment not found")

	ErrInvalidTransition = errors.New("invalid payment status transition")
)
