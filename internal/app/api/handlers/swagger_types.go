package handlers

import (
    "time"

    "github.com/eventcrew/feegate/internal/app/service/payment"
    "github.com/eventcrew/feegate/pkg/response"
    "github.com/eventcrew/feegate/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
    Code    response.APIResponseCode `json:"code"`
    Message string                   `json:"message"`
    Data    interface{}              `json:"data"`
}

// RespCreateSession wraps CreateSessionResult in the standard envelope.
type RespCreateSession struct {
    Code    response.APIResponseCode     `json:"code"`
    Message string                       `json:"message"`
    Data    payment.CreateSessionResult  `json:"data"`
}

// RespPayment wraps a single payment row in the standard envelope.
type RespPayment struct {
    Code    response.APIResponseCode `json:"code"`
    Message string                   `json:"message"`
    Data    SwaggerPayment           `json:"data"`
}

// RespListPayments wraps ScanPaymentsResponse in the standard envelope.
type RespListPayments struct {
    Code    response.APIResponseCode     `json:"code"`
    Message string                       `json:"message"`
    Data    payment.ScanPaymentsResponse `json:"data"`
}

// SwaggerPayment is a simplified view of models.Payment for documentation purposes.
type SwaggerPayment struct {
    ID                     string              `json:"id"`
    AttendanceID           string              `json:"attendance_id"`
    EventID                string              `json:"event_id"`
    Method                 types.PaymentMethod `json:"method"`
    Amount                 int64               `json:"amount"`
    Currency               string              `json:"currency"`
    Status                 types.PaymentStatus `json:"status"`
    PaidAt                 *time.Time          `json:"paid_at"`
    ProviderSessionID      *string             `json:"provider_session_id"`
    ProviderPaymentIntentID *string            `json:"provider_payment_intent_id"`
    Version                int64               `json:"version"`
    CreatedAt              time.Time           `json:"created_at"`
    UpdatedAt              time.Time           `json:"updated_at"`
}
