package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/stockhold/internal/domain"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory stand-in for the postgres repositories. WithTx
// holds a single mutex for the whole transaction, which is at least as strict
// as row locking, and restores a snapshot when fn returns an error.
type fakeStore struct {
	mu   sync.Mutex
	inTx bool

	products map[string]domain.Product
	holds    map[string]domain.Hold
	orders   map[string]domain.Order

	// failOn makes the named method return the error once.
	failOn map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]domain.Product{},
		holds:    map[string]domain.Hold{},
		orders:   map[string]domain.Order{},
		failOn:   map[string]error{},
	}
}

func (f *fakeStore) addProduct(id string, available, reserved int, price string) domain.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := domain.Product{
		ID:             id,
		Name:           "product " + id,
		Price:          decimal.RequireFromString(price),
		StockAvailable: available,
		StockReserved:  reserved,
		Version:        1,
	}
	f.products[id] = p
	return p
}

func (f *fakeStore) addHold(h domain.Hold) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds[h.ID] = h
}

func (f *fakeStore) addOrder(o domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeStore) product(id string) domain.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id]
}

func (f *fakeStore) hold(id string) domain.Hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holds[id]
}

func (f *fakeStore) order(id string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeStore) failNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[method] = err
}

func (f *fakeStore) injected(method string) error {
	if err, ok := f.failOn[method]; ok {
		delete(f.failOn, method)
		return err
	}
	return nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	products := cloneMap(f.products)
	holds := cloneMap(f.holds)
	orders := cloneMap(f.orders)

	f.inTx = true
	err := fn(ctx)
	f.inTx = false
	if err != nil {
		f.products, f.holds, f.orders = products, holds, orders
	}
	return err
}

// lock is used by non-transactional reads; inside WithTx the mutex is
// already held.
func (f *fakeStore) lock() func() {
	if f.inTx {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) GetProductForUpdate(ctx context.Context, productID string) (domain.Product, error) {
	return f.GetProduct(ctx, productID)
}

func (f *fakeStore) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	defer f.lock()()
	if err := f.injected("GetProduct"); err != nil {
		return domain.Product{}, err
	}
	p, ok := f.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdateProductStock(_ context.Context, product domain.Product) error {
	defer f.lock()()
	if err := f.injected("UpdateProductStock"); err != nil {
		return err
	}
	if _, ok := f.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	f.products[product.ID] = product
	return nil
}

func (f *fakeStore) CreateProduct(_ context.Context, product domain.Product) error {
	defer f.lock()()
	if err := f.injected("CreateProduct"); err != nil {
		return err
	}
	f.products[product.ID] = product
	return nil
}

func (f *fakeStore) ListProducts(context.Context) ([]domain.Product, error) {
	defer f.lock()()
	out := make([]domain.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) CreateHold(_ context.Context, hold domain.Hold) error {
	defer f.lock()()
	if err := f.injected("CreateHold"); err != nil {
		return err
	}
	f.holds[hold.ID] = hold
	return nil
}

func (f *fakeStore) GetHoldForUpdate(_ context.Context, holdID string) (domain.Hold, error) {
	defer f.lock()()
	h, ok := f.holds[holdID]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return h, nil
}

func (f *fakeStore) MarkHoldRedeemed(_ context.Context, holdID, paymentIntentID string) error {
	defer f.lock()()
	h, ok := f.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	h.IsRedeemed = true
	h.PaymentIntentID = &paymentIntentID
	f.holds[holdID] = h
	return nil
}

func (f *fakeStore) ResetHoldRedemption(_ context.Context, holdID string) error {
	defer f.lock()()
	h, ok := f.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	h.IsRedeemed = false
	f.holds[holdID] = h
	return nil
}

func (f *fakeStore) MarkHoldReleased(_ context.Context, holdID string, at time.Time) error {
	defer f.lock()()
	if err := f.injected("MarkHoldReleased"); err != nil {
		return err
	}
	h, ok := f.holds[holdID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	h.ReleasedAt = &at
	f.holds[holdID] = h
	return nil
}

func (f *fakeStore) ListReclaimableHolds(_ context.Context, now time.Time, limit int) ([]string, error) {
	defer f.lock()()
	if err := f.injected("ListReclaimableHolds"); err != nil {
		return nil, err
	}
	var ids []string
	for _, h := range f.holds {
		if h.Reclaimable(now) {
			ids = append(ids, h.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order domain.Order) error {
	defer f.lock()()
	if err := f.injected("CreateOrder"); err != nil {
		return err
	}
	for _, o := range f.orders {
		if o.HoldID == order.HoldID {
			return domain.ErrHoldAlreadyRedeemed
		}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetOrderForUpdate(_ context.Context, orderID string) (domain.Order, error) {
	defer f.lock()()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) FinalizeOrder(_ context.Context, order domain.Order) error {
	defer f.lock()()
	if err := f.injected("FinalizeOrder"); err != nil {
		return err
	}
	if _, ok := f.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	if order.PaymentIdempotencyKey != nil {
		for _, o := range f.orders {
			if o.ID != order.ID && o.PaymentIdempotencyKey != nil && *o.PaymentIdempotencyKey == *order.PaymentIdempotencyKey {
				return domain.ErrIdempotencyConflict
			}
		}
	}
	f.orders[order.ID] = order
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var errBoom = errors.New("boom")

type recordingScheduler struct {
	mu    sync.Mutex
	calls map[string]time.Time
	err   error
}

func (r *recordingScheduler) ScheduleReclaim(_ context.Context, holdID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.calls == nil {
		r.calls = map[string]time.Time{}
	}
	r.calls[holdID] = at
	return nil
}

type memoryCache struct {
	mu          sync.Mutex
	views       map[string]domain.ProductView
	invalidated []string
	getErr      error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{views: map[string]domain.ProductView{}}
}

func (c *memoryCache) Get(_ context.Context, id string) (domain.ProductView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.ProductView{}, false, c.getErr
	}
	v, ok := c.views[id]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, view domain.ProductView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[view.ID] = view
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}
