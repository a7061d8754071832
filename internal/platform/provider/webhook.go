package provider

import (
	"encoding/json"
	"fmt"
)

// Webhook event types the engine dispatches on.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

// WebhookObject is the shape-relevant subset of the provider's event
// payload object.
type WebhookObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent,omitempty"`
	Status        string            `json:"status,omitempty"`
	AmountTotal   int64             `json:"amount_total,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// WebhookEvent is one provider notification. ID is globally unique per
// event and doubles as the idempotency key.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object WebhookObject `json:"object"`
	} `json:"data"`
}

func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, newError(CategoryValidation, false, "failed to parse webhook payload", err)
	}
	if event.ID == "" {
		return nil, newError(CategoryValidation, false, "webhook payload missing event id", nil)
	}
	if event.Type == "" {
		return nil, newError(CategoryValidation, false, fmt.Sprintf("webhook event %s missing type", event.ID), nil)
	}
	return &event, nil
}
