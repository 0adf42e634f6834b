package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"go.uber.org/zap"
)

// OrderPlacer is the minimal interface needed to turn a hold into an order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, holdID string) (domain.Order, error)
}

// HandlePlaceOrder returns an HTTP handler for POST /orders.
func HandlePlaceOrder(svc OrderPlacer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := decodeBody(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		holdID := strings.TrimSpace(req.HoldID)
		if holdID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "hold_id is required")
			return
		}

		order, err := svc.PlaceOrder(r.Context(), holdID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, newOrderResponse(order))
	}
}

type placeOrderRequest struct {
	HoldID string `json:"hold_id"`
}

type orderResponse struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	HoldID      string    `json:"hold_id"`
	Quantity    int       `json:"qty"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		ProductID:   o.ProductID,
		HoldID:      o.HoldID,
		Quantity:    o.Quantity,
		AmountCents: o.AmountCents,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
