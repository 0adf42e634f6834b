package postgres

import (
	"context"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price::text, stock_available, stock_reserved, version, created_at, updated_at`

type ProductRepository struct {
	conn
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{conn{pool: pool}}
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	const stmt = `
INSERT INTO products (id, name, description, price, stock_available, stock_reserved, version, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`
	_, err := r.exec(ctx, stmt,
		p.ID,
		p.Name,
		p.Description,
		p.Price.String(),
		p.StockAvailable,
		p.StockReserved,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return errors.Wrap(err, "create product")
	}
	return nil
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name ASC, created_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return products, nil
}

// GetProduct reads a product without locking it.
func (c conn) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return c.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
}

// GetProductForUpdate reads a product and locks its row until the
// surrounding transaction ends. Every stock mutation goes through it.
func (c conn) GetProductForUpdate(ctx context.Context, productID string) (domain.Product, error) {
	return c.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
}

func (c conn) getProduct(ctx context.Context, query, productID string) (domain.Product, error) {
	p, err := scanProduct(c.queryRow(ctx, query, productID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Product{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, errors.Wrap(err, "get product")
	}
	return p, nil
}

// UpdateProductStock writes back the counters and version produced by the
// ledger operations.
func (c conn) UpdateProductStock(ctx context.Context, p domain.Product) error {
	const stmt = `
UPDATE products
SET stock_available = $2, stock_reserved = $3, version = $4, updated_at = NOW()
WHERE id = $1`
	tag, err := c.exec(ctx, stmt, p.ID, p.StockAvailable, p.StockReserved, p.Version)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return errors.Wrap(err, "update product stock")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&price,
		&p.StockAvailable,
		&p.StockReserved,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, errors.Wrapf(err, "parse price %q", price)
	}
	p.Price = d
	return p, nil
}
