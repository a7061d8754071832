package provider

import (
	"context"
)

// CheckoutSessionRequest describes one hosted checkout session for an
// attendance fee.
type CheckoutSessionRequest struct {
	AttendanceID string            `json:"attendance_id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Description  string            `json:"description,omitempty"`
	SuccessURL   string            `json:"success_url"`
	CancelURL    string            `json:"cancel_url"`
	// IdempotencyKey dedupes the session on the provider side when our
	// request is retried.
	IdempotencyKey string            `json:"-"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type CheckoutSession struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	PaymentIntentID string `json:"payment_intent,omitempty"`
	Status          string `json:"status,omitempty"`
	AmountTotal     int64  `json:"amount_total,omitempty"`
}

type AccountStatus struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
	DisabledReason string `json:"disabled_reason,omitempty"`
}

// Client is the payment-provider contract the engine consumes. It is
// provider-neutral: implementations adapt a concrete provider's REST API.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
}
