package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/domain"
	"go.uber.org/zap"
)

// HoldCreator is the minimal interface needed to create a hold.
type HoldCreator interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Hold, error)
}

// HandleCreateHold returns an HTTP handler for POST /holds.
func HandleCreateHold(svc HoldCreator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createHoldRequest
		if err := decodeBody(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		req.ProductID = strings.TrimSpace(req.ProductID)
		if req.ProductID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "product_id is required")
			return
		}
		if req.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidQuantity, domain.ErrInvalidQuantity.Error())
			return
		}

		hold, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, holdResponse{
			ID:        hold.ID,
			ProductID: hold.ProductID,
			Quantity:  hold.Quantity,
			ExpiresAt: hold.ExpiresAt,
		})
	}
}

type createHoldRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"qty"`
}

type holdResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"qty"`
	ExpiresAt time.Time `json:"expires_at"`
}
