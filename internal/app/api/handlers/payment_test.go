package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/eventcrew/feegate/internal/app/service/payment"
	"github.com/eventcrew/feegate/internal/app/service/webhookguard"
	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/response"
	"github.com/eventcrew/feegate/pkg/types"
)

type stubPaymentService struct {
	createErr    error
	createRes    *payment.CreateSessionResult
	getRow       *models.Payment
	getErr       error
	webhookRes   *webhookguard.ProcessingResult
	webhookErr   error
	cashRow      *models.Payment
	cashErr      error
	lastWebhook  *provider.WebhookEvent
	lastOperator string
}

func (s *stubPaymentService) CreateSession(_ context.Context, _ *payment.CreateSessionRequest) (*payment.CreateSessionResult, error) {
	return s.createRes, s.createErr
}

func (s *stubPaymentService) GetByAttendance(_ context.Context, _ string) (*models.Payment, error) {
	return s.getRow, s.getErr
}

func (s *stubPaymentService) HandleWebhookEvent(_ context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	s.lastWebhook = event
	return s.webhookRes, s.webhookErr
}

func (s *stubPaymentService) MarkCashReceived(_ context.Context, _, operatorID, _ string) (*models.Payment, error) {
	s.lastOperator = operatorID
	return s.cashRow, s.cashErr
}

func (s *stubPaymentService) WaivePayment(_ context.Context, _, operatorID, _ string) (*models.Payment, error) {
	s.lastOperator = operatorID
	return s.cashRow, s.cashErr
}

func (s *stubPaymentService) RefundPayment(_ context.Context, _, operatorID, _ string) (*models.Payment, error) {
	s.lastOperator = operatorID
	return s.cashRow, s.cashErr
}

func (s *stubPaymentService) ScanPayments(_ context.Context, _ *payment.ScanPaymentsRequest) (*payment.ScanPaymentsResponse, error) {
	return &payment.ScanPaymentsResponse{Items: []*models.Payment{}, Total: 0}, nil
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (response.APIResponseCode, json.RawMessage) {
	t.Helper()
	var env struct {
		Code response.APIResponseCode `json:"code"`
		Data json.RawMessage          `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Code, env.Data
}

func sessionBody() map[string]any {
	return map[string]any{
		"attendance_id": "att-1",
		"event_id":      "evt-1",
		"method":        "online",
		"amount":        2500,
		"currency":      "eur",
	}
}

func TestApiCreatePaymentSession_ReturnsSessionURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubPaymentService{createRes: &payment.CreateSessionResult{
		PaymentID:  "pay-1",
		SessionURL: "https://provider.example/cs_1",
		SessionID:  "cs_1",
	}}
	r := gin.New()
	r.POST("/api/v1/payments/sessions", ApiCreatePaymentSession(svc))

	w := postJSON(t, r, "/api/v1/payments/sessions", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)

	code, data := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)
	var res payment.CreateSessionResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.Equal(t, "pay-1", res.PaymentID)
	require.Equal(t, "https://provider.example/cs_1", res.SessionURL)
}

func TestApiCreatePaymentSession_SettledAttendanceRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubPaymentService{createErr: payment.ErrPaymentAlreadyExists}
	r := gin.New()
	r.POST("/api/v1/payments/sessions", ApiCreatePaymentSession(svc))

	w := postJSON(t, r, "/api/v1/payments/sessions", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)

	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodePaymentExists, code)
}

func TestApiCreatePaymentSession_BadMethodRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/payments/sessions", ApiCreatePaymentSession(&stubPaymentService{}))

	body := sessionBody()
	body["method"] = "barter"
	w := postJSON(t, r, "/api/v1/payments/sessions", body)

	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeBadRequest, code)
}

func TestApiGetAttendancePayment_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubPaymentService{getErr: payment.ErrPaymentNotFound}
	r := gin.New()
	r.GET("/api/v1/payments/attendance/:attendance_id", ApiGetAttendancePayment(svc))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/attendance/att-404", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeNotFound, code)
}

func TestApiMarkCashReceived_PassesOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubPaymentService{cashRow: &models.Payment{ID: "pay-1", Status: types.PaymentStatusReceived}}
	r := gin.New()
	r.POST("/api/v1/admin/mark_cash_received", ApiMarkCashReceived(svc))

	w := postJSON(t, r, "/api/v1/admin/mark_cash_received", map[string]any{
		"payment_id":  "pay-1",
		"operator_id": "org-7",
		"note":        "paid at the door",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "org-7", svc.lastOperator)

	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeOK, code)
}

func TestApiMarkCashReceived_InvalidTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubPaymentService{cashErr: payment.ErrInvalidTransition}
	r := gin.New()
	r.POST("/api/v1/admin/mark_cash_received", ApiMarkCashReceived(svc))

	w := postJSON(t, r, "/api/v1/admin/mark_cash_received", map[string]any{
		"payment_id":  "pay-1",
		"operator_id": "org-7",
	})
	code, _ := decodeEnvelope(t, w)
	require.Equal(t, response.APIResponseCodeBadRequest, code)
}

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterPaymentRoutes(r.Group("/api/v1/payments"), &stubPaymentService{})
	RegisterAdminPaymentRoutes(r.Group("/api/v1/admin"), &stubPaymentService{})

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /api/v1/payments/sessions"))
	require.True(t, contains("GET /api/v1/payments/attendance/:attendance_id"))
	require.True(t, contains("POST /api/v1/admin/list_payments"))
	require.True(t, contains("POST /api/v1/admin/mark_cash_received"))
	require.True(t, contains("POST /api/v1/admin/waive_payment"))
	require.True(t, contains("POST /api/v1/admin/refund_payment"))
}
