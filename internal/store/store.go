package store

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store runs units of work. Everything fn writes through tx becomes visible
// on commit or not at all; a non-nil error from fn rolls back.
type Store interface {
	Counters
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Counters hands out atomic per-key sequence values outside any settlement
// transaction (find-or-create, then +1).
type Counters interface {
	Increment(ctx context.Context, key string) (int64, error)
}

type Tx interface {
	CatalogTx
	OrderTx
	CouponTx
	SellerTx
	CreditTx
}

type CatalogTx interface {
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	// LockStock reads the current stock of a variant ("" = product level) and
	// holds it against concurrent writers until the transaction ends.
	LockStock(ctx context.Context, productID, variantID string) (int, error)
	// DecrementStock subtracts qty only if stock >= qty; false means it did not.
	DecrementStock(ctx context.Context, productID, variantID string, qty int) (bool, error)
}

type OrderTx interface {
	// InsertOrder fails with ErrDuplicate when the order number is taken.
	InsertOrder(ctx context.Context, o model.Order) error
	InsertSubOrder(ctx context.Context, so model.SellerSubOrder) error
	InsertOrderItems(ctx context.Context, items []model.OrderItem) error
	SetOrderTotal(ctx context.Context, orderID string, total money.Cents) error
	SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error
	GetOrder(ctx context.Context, number string) (model.OrderView, error)
	GetOrderNumber(ctx context.Context, orderID string) (string, error)
	GetSubOrder(ctx context.Context, subOrderID string) (model.SellerSubOrder, error)
	ListSubOrders(ctx context.Context, orderID string) ([]model.SellerSubOrder, error)
	// TransitionSubOrder moves status from -> to; false when the row was not in from.
	TransitionSubOrder(ctx context.Context, subOrderID string, from, to model.SubOrderStatus, at time.Time) (bool, error)
	TransitionPayout(ctx context.Context, subOrderID string, from, to model.PayoutStatus, at time.Time) (bool, error)
	// ListUnsettledDelivered returns delivered sub-orders still awaiting their
	// seller credit whose last change is at or before before, oldest first.
	ListUnsettledDelivered(ctx context.Context, before time.Time, limit int) ([]model.SellerSubOrder, error)
}

type CouponTx interface {
	// FindCoupon returns the coupon with code and its batch (without Coupons).
	FindCoupon(ctx context.Context, code string) (model.CouponBatch, model.Coupon, error)
	// ConsumeCoupon bumps the coupon and batch usage counters only while the
	// coupon is unused and below maxUsage, flipping used when the limit is
	// reached. false means another transaction got there first.
	ConsumeCoupon(ctx context.Context, batchID, couponID, buyerID string, maxUsage int, at time.Time) (bool, error)
	InsertCouponUsage(ctx context.Context, u model.CouponUsage) error
}

type SellerTx interface {
	// GetSellerBalance returns a zero balance with Version 0 for unknown sellers.
	GetSellerBalance(ctx context.Context, sellerID string) (model.SellerBalance, error)
	// SaveSellerBalance writes b only if the stored version still equals
	// expectedVersion; b.Version must be expectedVersion+1.
	SaveSellerBalance(ctx context.Context, b model.SellerBalance, expectedVersion int64) (bool, error)
	InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, sellerID string, limit int) ([]model.LedgerEntry, error)
	GetPaymentMethod(ctx context.Context, sellerID string, kind model.PaymentMethodKind) (model.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, sellerID string, m model.PaymentMethod, at time.Time) error
	InsertWithdrawal(ctx context.Context, w model.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (model.Withdrawal, error)
	TransitionWithdrawal(ctx context.Context, id string, from, to model.WithdrawalStatus, actor, note string, at time.Time) (bool, error)
}

type CreditTx interface {
	// AddBuyerCredit increments the balance (creating it on first use) and
	// appends t, returning the new balance.
	AddBuyerCredit(ctx context.Context, t model.CreditTransaction) (money.Cents, error)
	GetBuyerCredit(ctx context.Context, buyerID string) (model.BuyerCreditBalance, error)
}
