package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductReader serves the cached product view.
type ProductReader interface {
	GetProduct(ctx context.Context, productID string) (domain.ProductView, error)
}

// ProductAdmin manages the catalog.
type ProductAdmin interface {
	CreateProduct(ctx context.Context, in app.CreateProductInput) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// HandleGetProduct returns an HTTP handler for GET /products/{id}.
func HandleGetProduct(svc ProductReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetProduct(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// HandleListProducts returns an HTTP handler for GET /admin/products.
func HandleListProducts(svc ProductAdmin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		resp := make([]adminProductResponse, 0, len(products))
		for _, p := range products {
			resp = append(resp, newAdminProductResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleCreateProduct returns an HTTP handler for POST /admin/products.
func HandleCreateProduct(svc ProductAdmin, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProductRequest
		if err := decodeBody(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Price == nil {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "price is required")
			return
		}

		p, err := svc.CreateProduct(r.Context(), app.CreateProductInput{
			Name:        req.Name,
			Description: req.Description,
			Price:       *req.Price,
			Stock:       req.Stock,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAdminProductResponse(p))
	}
}

type createProductRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       int              `json:"stock"`
}

type adminProductResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	StockAvailable int             `json:"stock_available"`
	StockReserved  int             `json:"stock_reserved"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newAdminProductResponse(p domain.Product) adminProductResponse {
	return adminProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		StockAvailable: p.StockAvailable,
		StockReserved:  p.StockReserved,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
