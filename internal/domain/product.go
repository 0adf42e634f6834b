package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the stock ledger entity. StockAvailable counts physical units,
// StockReserved the part of them promised to holds or unpaid orders.
type Product struct {
	ID             string
	Name           string
	Description    string
	Price          decimal.Decimal
	StockAvailable int
	StockReserved  int
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductView is the read model served to catalog clients.
type ProductView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	AvailableStock int             `json:"available_stock"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// View renders the product for catalog reads.
func (p Product) View() ProductView {
	sellable := p.Sellable()
	if sellable < 0 {
		sellable = 0
	}
	return ProductView{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		AvailableStock: sellable,
		Version:        p.Version,
		UpdatedAt:      p.UpdatedAt,
	}
}
