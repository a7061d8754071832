package provider

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	sig := SignPayload("whsec_test", body)

	require.True(t, VerifySignature("whsec_test", body, sig))
	require.False(t, VerifySignature("whsec_other", body, sig))
	require.False(t, VerifySignature("whsec_test", []byte("tampered"), sig))
	require.False(t, VerifySignature("whsec_test", body, ""))
	require.False(t, VerifySignature("", body, sig))
}

func TestParseWebhookEvent_RejectsMissingFields(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`{"type":"checkout.session.completed"}`))
	require.Error(t, err)

	_, err = ParseWebhookEvent([]byte(`{"id":"evt_1"}`))
	require.Error(t, err)

	event, err := ParseWebhookEvent([]byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_1"}}}`))
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "pi_1", event.Data.Object.PaymentIntent)
}
