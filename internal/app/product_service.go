package app

import (
	"context"
	"strings"

	"github.com/cimillas/stockhold/internal/clock"
	"github.com/cimillas/stockhold/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// ProductService manages the catalog and serves cached product views.
type ProductService struct {
	repo  ProductRepository
	clock clock.Clock
	opts  options
}

func NewProductService(repo ProductRepository, clk clock.Clock, opts ...Option) *ProductService {
	return &ProductService{
		repo:  repo,
		clock: clk,
		opts:  newOptions(opts),
	}
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Product{}, domain.ErrProductNameRequired
	}
	if in.Price.IsNegative() {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	if in.Stock < 0 {
		return domain.Product{}, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:             newID(),
		Name:           name,
		Description:    in.Description,
		Price:          in.Price,
		StockAvailable: in.Stock,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *ProductService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetProduct serves the product view from cache, falling back to the store
// and repopulating the cache on a miss.
func (s *ProductService) GetProduct(ctx context.Context, productID string) (domain.ProductView, error) {
	view, ok, err := s.opts.cache.Get(ctx, productID)
	if err != nil {
		s.opts.logger.Warn("product cache read failed", zap.String("product_id", productID), zap.Error(err))
	}
	if ok {
		return view, nil
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductView{}, err
	}

	view = product.View()
	if err := s.opts.cache.Set(ctx, view); err != nil {
		s.opts.logger.Warn("product cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
	return view, nil
}
