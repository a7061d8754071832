package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/logctx"
	"github.com/eventcrew/feegate/pkg/response"
)

// @Summary      Provider Webhook
// @Description  Receives payment provider event notifications. The body must carry a valid HMAC signature. Redeliveries of an already processed event are acknowledged without reprocessing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Provider event payload"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhooks/provider [post]
// ApiProviderWebhook verifies, parses and applies provider events. A non-2xx
// status asks the provider to redeliver, so transient failures return 500
// while signature and shape problems return 4xx.
func ApiProviderWebhook(svc PaymentService, webhookSecret string, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromCtx(c, log)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "failed to read body"))
			return
		}

		sig := c.GetHeader(provider.SignatureHeader)
		if !provider.VerifySignature(webhookSecret, body, sig) {
			l.Warnw("webhook_signature_rejected", "has_signature", sig != "")
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid signature"))
			return
		}

		event, err := provider.ParseWebhookEvent(body)
		if err != nil {
			l.Warnw("webhook_parse_error", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		l.Infow("webhook_received", "event_id", event.ID, "event_type", event.Type)

		res, err := svc.HandleWebhookEvent(c.Request.Context(), event)
		if err != nil {
			l.Errorw("webhook_handle_error", "event_id", event.ID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		if res.WasAlreadyProcessed {
			l.Infow("webhook_duplicate_acknowledged", "event_id", event.ID)
			c.JSON(http.StatusOK, response.OKT[any](nil))
			return
		}
		if !res.Terminal {
			// Released without a committed outcome; redelivery will retry.
			l.Infow("webhook_deferred", "event_id", event.ID, "message", res.Message)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, res.Message))
			return
		}

		l.Infow("webhook_handled", "event_id", event.ID, "success", res.Success, "payment_id", res.PaymentID)
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc PaymentService, webhookSecret string, log *zap.SugaredLogger) {
	r.POST("/provider", ApiProviderWebhook(svc, webhookSecret, log))
}
