package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventcrew/feegate/internal/app/service/payment"
	"github.com/eventcrew/feegate/pkg/response"
	"github.com/eventcrew/feegate/pkg/types"
)

type ListPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type OrganizerActionRequest struct {
	PaymentID  string `json:"payment_id" binding:"required"`
	OperatorID string `json:"operator_id" binding:"required"`
	Note       string `json:"note"`
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListPaymentsRequest true "List payments request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		scanReq := &payment.ScanPaymentsRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		res, err := svc.ScanPayments(c.Request.Context(), scanReq)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func organizerAction(op func(c *gin.Context, req *OrganizerActionRequest) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrganizerActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := op(c, &req); err != nil {
			switch {
			case errors.Is(err, payment.ErrPaymentNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			case errors.Is(err, payment.ErrInvalidTransition):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, payment.ErrConcurrentUpdate):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeConflict, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
		}
	}
}

// @Summary      Mark Cash Received (Admin)
// @Description  Confirms that a cash payment was collected at the venue.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body OrganizerActionRequest true "Cash confirmation request"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/admin/mark_cash_received [post]
func ApiMarkCashReceived(svc PaymentService) gin.HandlerFunc {
	return organizerAction(func(c *gin.Context, req *OrganizerActionRequest) error {
		row, err := svc.MarkCashReceived(c.Request.Context(), req.PaymentID, req.OperatorID, req.Note)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, response.OKT(row))
		return nil
	})
}

// @Summary      Waive Payment (Admin)
// @Description  Waives the fee obligation for an attendance.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body OrganizerActionRequest true "Waive request"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/admin/waive_payment [post]
func ApiWaivePayment(svc PaymentService) gin.HandlerFunc {
	return organizerAction(func(c *gin.Context, req *OrganizerActionRequest) error {
		row, err := svc.WaivePayment(c.Request.Context(), req.PaymentID, req.OperatorID, req.Note)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, response.OKT(row))
		return nil
	})
}

// @Summary      Refund Payment (Admin)
// @Description  Records a refund for a settled payment.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body OrganizerActionRequest true "Refund request"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/admin/refund_payment [post]
func ApiRefundPayment(svc PaymentService) gin.HandlerFunc {
	return organizerAction(func(c *gin.Context, req *OrganizerActionRequest) error {
		row, err := svc.RefundPayment(c.Request.Context(), req.PaymentID, req.OperatorID, req.Note)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, response.OKT(row))
		return nil
	})
}

func RegisterAdminPaymentRoutes(r gin.IRouter, svc PaymentService) {
	r.POST("/list_payments", ApiListPayments(svc))
	r.POST("/mark_cash_received", ApiMarkCashReceived(svc))
	r.POST("/waive_payment", ApiWaivePayment(svc))
	r.POST("/refund_payment", ApiRefundPayment(svc))
}
