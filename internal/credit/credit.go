// Package credit is the buyer-side wallet: bonus and refund credit as an
// append-only transaction log with a running balance.
package credit

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

type Service struct {
	store    store.Store
	coupons  *coupon.Engine
	notifier notify.Notifier
	log      *zap.Logger
	producer string

	now   func() time.Time
	newID func() string
}

func NewService(st store.Store, coupons *coupon.Engine, n notify.Notifier, log *zap.Logger, producer string) *Service {
	return &Service{
		store:    st,
		coupons:  coupons,
		notifier: n,
		log:      log,
		producer: producer,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) Credit(ctx context.Context, buyerID string, amount money.Cents, typ model.CreditType, description, reference string) (money.Cents, error) {
	if strings.TrimSpace(buyerID) == "" {
		return 0, apperr.Validation("Buyer is required")
	}
	if amount <= 0 {
		return 0, apperr.Validation("Credit amount must be greater than zero")
	}
	var bal money.Cents
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		bal, err = tx.AddBuyerCredit(ctx, s.txn(buyerID, amount, typ, description, reference))
		return err
	})
	return bal, err
}

func (s *Service) txn(buyerID string, amount money.Cents, typ model.CreditType, description, reference string) model.CreditTransaction {
	return model.CreditTransaction{
		ID:          s.newID(),
		BuyerID:     buyerID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		Reference:   reference,
		CreatedAt:   s.now().UTC(),
	}
}

// RedeemCoupon turns a fixed-value coupon into wallet credit. The coupon's
// used flag is the same one checkout consumes, so a code pays out through
// one path only.
func (s *Service) RedeemCoupon(ctx context.Context, buyerID, code string) (money.Cents, model.CreditTransaction, error) {
	if strings.TrimSpace(buyerID) == "" {
		return 0, model.CreditTransaction{}, apperr.Validation("Buyer is required")
	}
	if strings.TrimSpace(code) == "" {
		return 0, model.CreditTransaction{}, apperr.Validation("Coupon code is required")
	}

	var (
		bal money.Cents
		ct  model.CreditTransaction
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := s.coupons.ValidateForCredit(ctx, tx, code, buyerID)
		if err != nil {
			return err
		}
		ct = s.txn(buyerID, r.Discount, model.CreditCouponBonus, "Coupon "+r.Code+" redeemed", r.CouponID)
		if err := s.coupons.MarkUsed(ctx, tx, r, buyerID, "", s.newID()); err != nil {
			return err
		}
		bal, err = tx.AddBuyerCredit(ctx, ct)
		return err
	})
	if err != nil {
		return 0, model.CreditTransaction{}, err
	}

	s.log.Info("coupon redeemed as credit",
		zap.String("buyer_id", buyerID), zap.String("coupon_id", ct.Reference), zap.Stringer("amount", ct.Amount))
	notify.Emit(ctx, s.notifier, s.log, s.producer, events.EventBuyerCreditRedeemed, buyerID,
		events.BuyerCreditRedeemedPayload{BuyerID: buyerID, CouponCode: strings.TrimSpace(code), AmountCents: int64(ct.Amount)})
	return bal, ct, nil
}

func (s *Service) Get(ctx context.Context, buyerID string) (model.BuyerCreditBalance, error) {
	var out model.BuyerCreditBalance
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetBuyerCredit(ctx, buyerID)
		return err
	})
	return out, err
}
