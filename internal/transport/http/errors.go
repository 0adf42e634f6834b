package http

import (
	"encoding/json"
	"net/http"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidPrice         = "invalid_price"
	codeProductNameRequired  = "product_name_required"
	codeProductNotFound      = "product_not_found"
	codeInsufficientStock    = "insufficient_stock"
	codeHoldNotFound         = "hold_not_found"
	codeHoldAlreadyRedeemed  = "hold_already_redeemed"
	codeHoldReleased         = "hold_released"
	codeHoldExpired          = "hold_expired"
	codeOrderNotFound        = "order_not_found"
	codeIdempotencyRequired  = "idempotency_key_required"
	codeIdempotencyConflict  = "idempotency_conflict"
	codeInvalidStatus        = "invalid_status"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

// orderRetryAfter is sent with order_not_found so the payment processor
// redelivers once the order insert is visible.
const orderRetryAfter = "5"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

var errorMappings = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codeInvalidQuantity},
	{domain.ErrInvalidID, http.StatusBadRequest, codeInvalidID},
	{domain.ErrInvalidPrice, http.StatusBadRequest, codeInvalidPrice},
	{domain.ErrProductNameRequired, http.StatusBadRequest, codeProductNameRequired},
	{domain.ErrIdempotencyKeyRequired, http.StatusBadRequest, codeIdempotencyRequired},
	{domain.ErrInvalidOutcome, http.StatusBadRequest, codeInvalidStatus},
	{domain.ErrProductNotFound, http.StatusNotFound, codeProductNotFound},
	{domain.ErrHoldNotFound, http.StatusNotFound, codeHoldNotFound},
	{domain.ErrHoldAlreadyRedeemed, http.StatusConflict, codeHoldAlreadyRedeemed},
	{domain.ErrHoldReleased, http.StatusConflict, codeHoldReleased},
	{domain.ErrHoldExpired, http.StatusConflict, codeHoldExpired},
	{domain.ErrIdempotencyConflict, http.StatusConflict, codeIdempotencyConflict},
}

// writeServiceError maps domain errors to their status and code. Anything
// unrecognized is logged and reported as a retryable internal error.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeError(w, http.StatusConflict, codeInsufficientStock, stockErr.Error())
		return
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		writeError(w, http.StatusConflict, codeInsufficientStock, domain.ErrInsufficientStock.Error())
		return
	}
	if errors.Is(err, domain.ErrOrderNotFound) {
		w.Header().Set("Retry-After", orderRetryAfter)
		writeError(w, http.StatusNotFound, codeOrderNotFound, domain.ErrOrderNotFound.Error())
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}

	if logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func decodeBody(r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}
