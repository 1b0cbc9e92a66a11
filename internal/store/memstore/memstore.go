// Package memstore is an in-process store.Store. Transactions are serialized
// and run against a copy of the state that replaces it only on commit.
package memstore

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"sort"
	"sync"
	"time"
)

type Store struct {
	mu    sync.Mutex
	state *state

	cmu         sync.Mutex
	counters    map[string]int64
	counterFail error
}

func New() *Store {
	return &Store{state: newState(), counters: map[string]int64{}}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	// a deadline that expired mid-transaction aborts instead of committing
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	if s.counterFail != nil {
		return 0, s.counterFail
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.counters[key]++
	return s.counters[key], nil
}

// FailCounters makes Increment return err until called again with nil.
func (s *Store) FailCounters(err error) {
	s.cmu.Lock()
	s.counterFail = err
	s.cmu.Unlock()
}

// SetCounter forces the next Increment for key to return v+1.
func (s *Store) SetCounter(key string, v int64) {
	s.cmu.Lock()
	s.counters[key] = v
	s.cmu.Unlock()
}

// PutProduct seeds the catalog.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range p.Variants {
		p.Variants[i].ProductID = p.ID
	}
	s.state.products[p.ID] = cloneProduct(p)
}

// PutCouponBatch seeds a batch together with its coupons.
func (s *Store) PutCouponBatch(b model.CouponBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range b.Coupons {
		c.BatchID = b.ID
		s.state.coupons[c.ID] = c
		s.state.couponByCode[c.Code] = c.ID
	}
	b.Coupons = nil
	s.state.batches[b.ID] = b
}

// Counts reports how many rows each table holds.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"orders":         len(s.state.orders),
		"order_items":    len(s.state.items),
		"sub_orders":     len(s.state.subOrders),
		"coupon_usages":  len(s.state.usages),
		"ledger_entries": len(s.state.entries),
		"withdrawals":    len(s.state.withdrawals),
	}
}

type state struct {
	products map[string]model.Product

	orders        map[string]model.Order
	orderByNumber map[string]string
	items         map[string]model.OrderItem
	subOrders     map[string]model.SellerSubOrder
	batches       map[string]model.CouponBatch
	coupons       map[string]model.Coupon
	couponByCode  map[string]string
	usages        []model.CouponUsage
	balances      map[string]model.SellerBalance
	entries       []model.LedgerEntry
	entryKeys     map[string]bool
	methods       map[string]model.PaymentMethod
	withdrawals   map[string]model.Withdrawal
	credits       map[string]money.Cents
	creditTxns    []model.CreditTransaction
}

func newState() *state {
	return &state{
		products:      map[string]model.Product{},
		orders:        map[string]model.Order{},
		orderByNumber: map[string]string{},
		items:         map[string]model.OrderItem{},
		subOrders:     map[string]model.SellerSubOrder{},
		batches:       map[string]model.CouponBatch{},
		coupons:       map[string]model.Coupon{},
		couponByCode:  map[string]string{},
		balances:      map[string]model.SellerBalance{},
		entryKeys:     map[string]bool{},
		methods:       map[string]model.PaymentMethod{},
		withdrawals:   map[string]model.Withdrawal{},
		credits:       map[string]money.Cents{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range s.orders {
		v.ItemIDs = append([]string(nil), v.ItemIDs...)
		v.SubOrderIDs = append([]string(nil), v.SubOrderIDs...)
		c.orders[k] = v
	}
	copyMap(c.orderByNumber, s.orderByNumber)
	copyMap(c.items, s.items)
	for k, v := range s.subOrders {
		v.ItemIDs = append([]string(nil), v.ItemIDs...)
		c.subOrders[k] = v
	}
	copyMap(c.batches, s.batches)
	copyMap(c.coupons, s.coupons)
	copyMap(c.couponByCode, s.couponByCode)
	c.usages = append(c.usages, s.usages...)
	copyMap(c.balances, s.balances)
	c.entries = append(c.entries, s.entries...)
	copyMap(c.entryKeys, s.entryKeys)
	copyMap(c.methods, s.methods)
	copyMap(c.withdrawals, s.withdrawals)
	copyMap(c.credits, s.credits)
	c.creditTxns = append(c.creditTxns, s.creditTxns...)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

func cloneProduct(p model.Product) model.Product {
	p.Variants = append([]model.Variant(nil), p.Variants...)
	return p
}

type tx struct{ st *state }

var _ store.Store = (*Store)(nil)

// catalog

func (t *tx) GetProduct(_ context.Context, productID string) (model.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return model.Product{}, store.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (t *tx) LockStock(_ context.Context, productID, variantID string) (int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if variantID == "" {
		return p.Stock, nil
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v.Stock, nil
		}
	}
	return 0, store.ErrNotFound
}

func (t *tx) DecrementStock(_ context.Context, productID, variantID string, qty int) (bool, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return false, store.ErrNotFound
	}
	if variantID == "" {
		if p.Stock < qty {
			return false, nil
		}
		p.Stock -= qty
		t.st.products[productID] = p
		return true, nil
	}
	for i, v := range p.Variants {
		if v.ID != variantID {
			continue
		}
		if v.Stock < qty {
			return false, nil
		}
		p.Variants[i].Stock -= qty
		t.st.products[productID] = p
		return true, nil
	}
	return false, store.ErrNotFound
}

// orders

func (t *tx) InsertOrder(_ context.Context, o model.Order) error {
	if _, ok := t.st.orderByNumber[o.Number]; ok {
		return fmt.Errorf("order number %s: %w", o.Number, store.ErrDuplicate)
	}
	o.ItemIDs, o.SubOrderIDs = nil, nil
	t.st.orders[o.ID] = o
	t.st.orderByNumber[o.Number] = o.ID
	return nil
}

func (t *tx) InsertSubOrder(_ context.Context, so model.SellerSubOrder) error {
	if _, ok := t.st.orders[so.OrderID]; !ok {
		return store.ErrNotFound
	}
	so.ItemIDs = nil
	t.st.subOrders[so.ID] = so
	return nil
}

func (t *tx) InsertOrderItems(_ context.Context, items []model.OrderItem) error {
	for _, it := range items {
		if _, ok := t.st.orders[it.OrderID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := t.st.subOrders[it.SubOrderID]; !ok {
			return store.ErrNotFound
		}
		t.st.items[it.ID] = it
	}
	return nil
}

func (t *tx) SetOrderTotal(_ context.Context, orderID string, total money.Cents) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.TotalPrice = total
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) SetOrderStatus(_ context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) GetOrder(_ context.Context, number string) (model.OrderView, error) {
	id, ok := t.st.orderByNumber[number]
	if !ok {
		return model.OrderView{}, store.ErrNotFound
	}
	view := model.OrderView{Order: t.st.orders[id]}
	for _, it := range t.st.items {
		if it.OrderID == id {
			view.Items = append(view.Items, it)
		}
	}
	sort.Slice(view.Items, func(i, j int) bool { return view.Items[i].ID < view.Items[j].ID })
	view.SubOrders = t.subOrdersOf(id)
	for _, it := range view.Items {
		view.Order.ItemIDs = append(view.Order.ItemIDs, it.ID)
	}
	for _, so := range view.SubOrders {
		view.Order.SubOrderIDs = append(view.Order.SubOrderIDs, so.ID)
	}
	return view, nil
}

func (t *tx) GetOrderNumber(_ context.Context, orderID string) (string, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return "", store.ErrNotFound
	}
	return o.Number, nil
}

func (t *tx) subOrdersOf(orderID string) []model.SellerSubOrder {
	var out []model.SellerSubOrder
	for _, so := range t.st.subOrders {
		if so.OrderID == orderID {
			out = append(out, t.withItems(so))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellerID < out[j].SellerID })
	return out
}

func (t *tx) withItems(so model.SellerSubOrder) model.SellerSubOrder {
	so.ItemIDs = nil
	for _, it := range t.st.items {
		if it.SubOrderID == so.ID {
			so.ItemIDs = append(so.ItemIDs, it.ID)
		}
	}
	sort.Strings(so.ItemIDs)
	return so
}

func (t *tx) GetSubOrder(_ context.Context, subOrderID string) (model.SellerSubOrder, error) {
	so, ok := t.st.subOrders[subOrderID]
	if !ok {
		return model.SellerSubOrder{}, store.ErrNotFound
	}
	return t.withItems(so), nil
}

func (t *tx) ListSubOrders(_ context.Context, orderID string) ([]model.SellerSubOrder, error) {
	return t.subOrdersOf(orderID), nil
}

func (t *tx) TransitionSubOrder(_ context.Context, subOrderID string, from, to model.SubOrderStatus, at time.Time) (bool, error) {
	so, ok := t.st.subOrders[subOrderID]
	if !ok {
		return false, store.ErrNotFound
	}
	if so.Status != from {
		return false, nil
	}
	so.Status = to
	so.UpdatedAt = at
	t.st.subOrders[subOrderID] = so
	return true, nil
}

func (t *tx) TransitionPayout(_ context.Context, subOrderID string, from, to model.PayoutStatus, at time.Time) (bool, error) {
	so, ok := t.st.subOrders[subOrderID]
	if !ok {
		return false, store.ErrNotFound
	}
	if so.PayoutStatus != from {
		return false, nil
	}
	so.PayoutStatus = to
	so.UpdatedAt = at
	t.st.subOrders[subOrderID] = so
	return true, nil
}

func (t *tx) ListUnsettledDelivered(_ context.Context, before time.Time, limit int) ([]model.SellerSubOrder, error) {
	var out []model.SellerSubOrder
	for _, so := range t.st.subOrders {
		if so.Status == model.SubOrderDelivered && so.PayoutStatus == model.PayoutUnsettled && !so.UpdatedAt.After(before) {
			out = append(out, t.withItems(so))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// coupons

func (t *tx) FindCoupon(_ context.Context, code string) (model.CouponBatch, model.Coupon, error) {
	id, ok := t.st.couponByCode[code]
	if !ok {
		return model.CouponBatch{}, model.Coupon{}, store.ErrNotFound
	}
	c := t.st.coupons[id]
	b, ok := t.st.batches[c.BatchID]
	if !ok {
		return model.CouponBatch{}, model.Coupon{}, store.ErrNotFound
	}
	return b, c, nil
}

func (t *tx) ConsumeCoupon(_ context.Context, batchID, couponID, buyerID string, maxUsage int, at time.Time) (bool, error) {
	c, ok := t.st.coupons[couponID]
	if !ok || c.BatchID != batchID {
		return false, store.ErrNotFound
	}
	if c.Used || c.UsageCount >= maxUsage {
		return false, nil
	}
	c.UsageCount++
	c.Used = c.UsageCount >= maxUsage
	c.UsedAt = &at
	c.UsedBy = buyerID
	t.st.coupons[couponID] = c

	b := t.st.batches[batchID]
	b.UsageCount++
	t.st.batches[batchID] = b
	return true, nil
}

func (t *tx) InsertCouponUsage(_ context.Context, u model.CouponUsage) error {
	t.st.usages = append(t.st.usages, u)
	return nil
}

// sellers

func (t *tx) GetSellerBalance(_ context.Context, sellerID string) (model.SellerBalance, error) {
	b, ok := t.st.balances[sellerID]
	if !ok {
		return model.SellerBalance{SellerID: sellerID}, nil
	}
	return b, nil
}

func (t *tx) SaveSellerBalance(_ context.Context, b model.SellerBalance, expectedVersion int64) (bool, error) {
	cur := t.st.balances[b.SellerID]
	if cur.Version != expectedVersion {
		return false, nil
	}
	t.st.balances[b.SellerID] = b
	return true, nil
}

func entryKey(e model.LedgerEntry) string {
	return e.SellerID + "|" + string(e.Op) + "|" + e.Reference
}

func (t *tx) InsertLedgerEntry(_ context.Context, e model.LedgerEntry) error {
	k := entryKey(e)
	if t.st.entryKeys[k] {
		return fmt.Errorf("ledger entry %s: %w", k, store.ErrDuplicate)
	}
	t.st.entryKeys[k] = true
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *tx) ListLedgerEntries(_ context.Context, sellerID string, limit int) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		if t.st.entries[i].SellerID != sellerID {
			continue
		}
		out = append(out, t.st.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func methodKey(sellerID string, kind model.PaymentMethodKind) string {
	return sellerID + "|" + string(kind)
}

func (t *tx) GetPaymentMethod(_ context.Context, sellerID string, kind model.PaymentMethodKind) (model.PaymentMethod, error) {
	m, ok := t.st.methods[methodKey(sellerID, kind)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (t *tx) SavePaymentMethod(_ context.Context, sellerID string, m model.PaymentMethod, _ time.Time) error {
	t.st.methods[methodKey(sellerID, m.Kind())] = m
	return nil
}

func (t *tx) InsertWithdrawal(_ context.Context, w model.Withdrawal) error {
	if _, ok := t.st.withdrawals[w.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.withdrawals[w.ID] = w
	return nil
}

func (t *tx) GetWithdrawal(_ context.Context, id string) (model.Withdrawal, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return model.Withdrawal{}, store.ErrNotFound
	}
	return w, nil
}

func (t *tx) TransitionWithdrawal(_ context.Context, id string, from, to model.WithdrawalStatus, actor, note string, at time.Time) (bool, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if w.Status != from {
		return false, nil
	}
	w.Status = to
	w.ProcessedAt = &at
	w.ProcessedBy = actor
	w.Note = note
	t.st.withdrawals[id] = w
	return true, nil
}

// buyer credit

func (t *tx) AddBuyerCredit(_ context.Context, ct model.CreditTransaction) (money.Cents, error) {
	t.st.credits[ct.BuyerID] += ct.Amount
	t.st.creditTxns = append(t.st.creditTxns, ct)
	return t.st.credits[ct.BuyerID], nil
}

func (t *tx) GetBuyerCredit(_ context.Context, buyerID string) (model.BuyerCreditBalance, error) {
	out := model.BuyerCreditBalance{BuyerID: buyerID, Balance: t.st.credits[buyerID]}
	for _, ct := range t.st.creditTxns {
		if ct.BuyerID == buyerID {
			out.Transactions = append(out.Transactions, ct)
		}
	}
	return out, nil
}
