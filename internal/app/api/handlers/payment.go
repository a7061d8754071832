package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventcrew/feegate/internal/app/service/payment"
	"github.com/eventcrew/feegate/internal/app/service/webhookguard"
	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/response"
)

// PaymentService is the service surface the HTTP layer depends on.
type PaymentService interface {
	CreateSession(ctx context.Context, req *payment.CreateSessionRequest) (*payment.CreateSessionResult, error)
	GetByAttendance(ctx context.Context, attendanceID string) (*models.Payment, error)
	HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error)
	MarkCashReceived(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error)
	WaivePayment(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error)
	RefundPayment(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error)
	ScanPayments(ctx context.Context, req *payment.ScanPaymentsRequest) (*payment.ScanPaymentsResponse, error)
}

// @Summary      Create Payment Session
// @Description  Starts or resumes a payment attempt for an attendance. A settled attendance is rejected; an open attempt is reused with a fresh provider session.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body payment.CreateSessionRequest true "Session creation request"
// @Success      200  {object}  handlers.RespCreateSession
// @Router       /api/v1/payments/sessions [post]
func ApiCreatePaymentSession(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.CreateSession(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, payment.ErrPaymentAlreadyExists) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodePaymentExists, err.Error()))
				return
			}
			if errors.Is(err, payment.ErrConcurrentUpdate) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Attendance Payment
// @Description  Returns the payment that currently represents the attendance, the highest-ranked row when several exist.
// @Tags         Payment
// @Produce      json
// @Param        attendance_id path string true "Attendance ID"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/payments/attendance/{attendance_id} [get]
func ApiGetAttendancePayment(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		attendanceID := c.Param("attendance_id")
		if attendanceID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing attendance_id"))
			return
		}

		row, err := svc.GetByAttendance(c.Request.Context(), attendanceID)
		if err != nil {
			if errors.Is(err, payment.ErrPaymentNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if row == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, "no payment for attendance"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(row))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc PaymentService) {
	r.POST("/sessions", ApiCreatePaymentSession(svc))
	r.GET("/attendance/:attendance_id", ApiGetAttendancePayment(svc))
}
