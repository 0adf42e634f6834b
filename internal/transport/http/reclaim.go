package http

import (
	"context"
	"net/http"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HoldReclaimer is the minimal interface needed to reclaim an expired hold.
type HoldReclaimer interface {
	ReclaimExpiredHold(ctx context.Context, holdID string) (app.ReclaimResult, error)
}

// HandleReclaimHold returns an HTTP handler for
// POST /internal/holds/{id}/reclaim. Every non-error outcome is a 200.
func HandleReclaimHold(svc HoldReclaimer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdID := mux.Vars(r)["id"]
		if holdID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "hold id is required")
			return
		}

		res, err := svc.ReclaimExpiredHold(r.Context(), holdID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reclaimResponse{
			HoldID:   holdID,
			Released: res.Released,
			Reason:   string(res.Reason),
		})
	}
}

type reclaimResponse struct {
	HoldID   string `json:"hold_id"`
	Released bool   `json:"released"`
	Reason   string `json:"reason"`
}
