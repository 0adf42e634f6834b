package domain

import "fmt"

// LedgerOperation names a stock ledger adjustment.
type LedgerOperation string

const (
	LedgerReserve LedgerOperation = "reserve"
	LedgerRelease LedgerOperation = "release"
	LedgerConsume LedgerOperation = "consume"
)

// StockAnomaly records a clamp applied because the ledger held fewer
// reserved units than an adjustment asked for. Anomalies are logged and
// counted; they never abort the surrounding transaction.
type StockAnomaly struct {
	ProductID         string
	Operation         LedgerOperation
	Requested         int
	ReservedBefore    int
	AvailableBefore   int
	ReservedReleased  int
	AvailableConsumed int
}

func (a StockAnomaly) String() string {
	return fmt.Sprintf("%s of %d on product %s with only %d reserved", a.Operation, a.Requested, a.ProductID, a.ReservedBefore)
}

// Sellable is the quantity new holds may still claim.
func (p *Product) Sellable() int {
	return p.StockAvailable - p.StockReserved
}

// Reserve moves qty units into the reserved portion. The caller must hold
// the product row lock.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if sellable := p.Sellable(); qty > sellable {
		if sellable < 0 {
			sellable = 0
		}
		return &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Sellable:    sellable,
			Requested:   qty,
		}
	}
	p.StockReserved += qty
	p.Version++
	return nil
}

// Release returns qty reserved units to the sellable pool. StockAvailable is
// untouched. A release larger than the reservation clamps at zero.
func (p *Product) Release(qty int) *StockAnomaly {
	anomaly := p.checkReserved(LedgerRelease, qty)
	p.StockReserved -= min(qty, p.StockReserved)
	p.Version++
	return anomaly
}

// Consume removes qty units from both counters, finalizing a sale.
func (p *Product) Consume(qty int) *StockAnomaly {
	anomaly := p.checkReserved(LedgerConsume, qty)
	p.StockReserved -= min(qty, p.StockReserved)
	consumed := min(qty, p.StockAvailable)
	p.StockAvailable -= consumed
	if anomaly != nil {
		anomaly.AvailableConsumed = consumed
	}
	p.Version++
	return anomaly
}

func (p *Product) checkReserved(op LedgerOperation, qty int) *StockAnomaly {
	if qty <= p.StockReserved {
		return nil
	}
	return &StockAnomaly{
		ProductID:        p.ID,
		Operation:        op,
		Requested:        qty,
		ReservedBefore:   p.StockReserved,
		AvailableBefore:  p.StockAvailable,
		ReservedReleased: max(p.StockReserved, 0),
	}
}
