package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/domain"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// PaymentProcessor is the minimal interface needed to reconcile payments.
type PaymentProcessor interface {
	ProcessPaymentEvent(ctx context.Context, in app.PaymentEventInput) (app.PaymentResult, error)
}

// HandlePaymentWebhook returns an HTTP handler for POST /payments/webhook.
// The Idempotency-Key header wins over the key in the body. Redeliveries
// and events for already finalized orders are acknowledged with 200.
func HandlePaymentWebhook(svc PaymentProcessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := decodeBody(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			key = strings.TrimSpace(req.IdempotencyKey)
		}
		if key == "" {
			writeError(w, http.StatusBadRequest, codeIdempotencyRequired, domain.ErrIdempotencyKeyRequired.Error())
			return
		}
		orderID := strings.TrimSpace(req.Data.OrderID)
		if orderID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "data.order_id is required")
			return
		}
		outcome, err := domain.ParsePaymentOutcome(req.Data.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
			return
		}

		res, err := svc.ProcessPaymentEvent(r.Context(), app.PaymentEventInput{
			OrderID:        orderID,
			Outcome:        outcome,
			IdempotencyKey: key,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, webhookResponse{
			Success: true,
			Result:  string(res.Reason),
			Order:   newOrderResponse(res.Order),
		})
	}
}

type webhookRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Data           struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"data"`
}

type webhookResponse struct {
	Success bool          `json:"success"`
	Result  string        `json:"result"`
	Order   orderResponse `json:"order"`
}
