// Package coupon validates and consumes seller-issued discount codes.
package coupon

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("coupon not found")
	ErrInactive     = errors.New("coupon batch inactive")
	ErrNotStarted   = errors.New("coupon not yet valid")
	ErrExpired      = errors.New("coupon expired")
	ErrAlreadyUsed  = errors.New("coupon already used")
	ErrNotRecipient = errors.New("coupon assigned to another buyer")
	ErrUsageLimit   = errors.New("coupon usage limit reached")
	ErrMinOrder     = errors.New("order below coupon minimum")
	ErrNotCredit    = errors.New("coupon cannot be redeemed as credit")
)

type Redemption struct {
	BatchID       string
	CouponID      string
	Code          string
	DiscountType  model.DiscountType
	DiscountValue int64
	MaxUsage      int
	Discount      money.Cents
}

type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine { return &Engine{now: time.Now} }

func Discount(typ model.DiscountType, value int64, amount money.Cents) money.Cents {
	if amount <= 0 || value <= 0 {
		return 0
	}
	var d money.Cents
	switch typ {
	case model.DiscountPercentage:
		d = money.Percent(amount, value)
	case model.DiscountFixed:
		d = money.Cents(value)
	}
	return money.Min(d, amount)
}

// Validate checks code for buyerID against orderAmount (the pre-discount
// total across all sellers), failing at the first rule broken.
func (e *Engine) Validate(ctx context.Context, tx store.CouponTx, code, buyerID string, orderAmount money.Cents) (Redemption, error) {
	b, c, err := e.check(ctx, tx, code, buyerID)
	if err != nil {
		return Redemption{}, err
	}
	if orderAmount < b.MinOrderAmount {
		return Redemption{}, apperr.Wrap(apperr.KindValidation, ErrMinOrder,
			"Coupon requires minimum order of %s", b.MinOrderAmount)
	}
	return redemption(b, c, Discount(b.DiscountType, b.DiscountValue, orderAmount)), nil
}

// ValidateForCredit checks a code redeemed straight into buyer credit rather
// than against an order. Only fixed-value coupons qualify.
func (e *Engine) ValidateForCredit(ctx context.Context, tx store.CouponTx, code, buyerID string) (Redemption, error) {
	b, c, err := e.check(ctx, tx, code, buyerID)
	if err != nil {
		return Redemption{}, err
	}
	if b.DiscountType != model.DiscountFixed || b.DiscountValue <= 0 {
		return Redemption{}, apperr.Wrap(apperr.KindValidation, ErrNotCredit, "Only fixed-value coupons can be redeemed as credit")
	}
	return redemption(b, c, money.Cents(b.DiscountValue)), nil
}

func redemption(b model.CouponBatch, c model.Coupon, d money.Cents) Redemption {
	return Redemption{
		BatchID:       b.ID,
		CouponID:      c.ID,
		Code:          c.Code,
		DiscountType:  b.DiscountType,
		DiscountValue: b.DiscountValue,
		MaxUsage:      b.MaxUsage,
		Discount:      d,
	}
}

func (e *Engine) check(ctx context.Context, tx store.CouponTx, code, buyerID string) (model.CouponBatch, model.Coupon, error) {
	code = strings.TrimSpace(code)
	b, c, err := tx.FindCoupon(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return b, c, apperr.Wrap(apperr.KindValidation, ErrNotFound, "Invalid coupon code")
	}
	if err != nil {
		return b, c, err
	}

	now := e.now()
	switch {
	case !b.IsActive:
		return b, c, apperr.Wrap(apperr.KindValidation, ErrInactive, "Coupon is no longer active")
	case now.Before(b.ValidFrom):
		return b, c, apperr.Wrap(apperr.KindValidation, ErrNotStarted, "Coupon is not valid yet")
	case now.After(b.ExpiresAt):
		return b, c, apperr.Wrap(apperr.KindValidation, ErrExpired, "Coupon has expired")
	case c.Used:
		return b, c, apperr.Wrap(apperr.KindConflict, ErrAlreadyUsed, "Coupon has already been used")
	case c.RecipientID != "" && c.RecipientID != buyerID:
		return b, c, apperr.Wrap(apperr.KindValidation, ErrNotRecipient, "Coupon is assigned to another customer")
	case c.UsageCount >= b.MaxUsage:
		return b, c, apperr.Wrap(apperr.KindConflict, ErrUsageLimit, "Coupon usage limit reached")
	}
	return b, c, nil
}

// MarkUsed consumes r for buyerID and records the usage. It is a conditional
// write: losing the race to another transaction is a conflict that must abort
// the caller's whole unit of work.
func (e *Engine) MarkUsed(ctx context.Context, tx store.CouponTx, r Redemption, buyerID, orderID, usageID string) error {
	at := e.now()
	ok, err := tx.ConsumeCoupon(ctx, r.BatchID, r.CouponID, buyerID, r.MaxUsage, at)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Wrap(apperr.KindConflict, ErrAlreadyUsed, "Coupon is no longer valid")
	}
	return tx.InsertCouponUsage(ctx, model.CouponUsage{
		ID:       usageID,
		BatchID:  r.BatchID,
		CouponID: r.CouponID,
		BuyerID:  buyerID,
		OrderID:  orderID,
		Discount: r.Discount,
		UsedAt:   at,
	})
}
