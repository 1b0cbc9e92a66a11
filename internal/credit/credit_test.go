package credit

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/checkout"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/sequencer"
	"github.com/ariefcatur/go-seller-settlement/internal/stock"
	"github.com/ariefcatur/go-seller-settlement/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
	"time"
)

func seed(st *memstore.Store, typ model.DiscountType, value int64, code string) {
	st.PutCouponBatch(model.CouponBatch{
		ID:            "batch-" + code,
		SellerID:      "seller-a",
		DiscountType:  typ,
		DiscountValue: value,
		ValidFrom:     time.Now().Add(-time.Hour),
		ExpiresAt:     time.Now().Add(time.Hour),
		MaxUsage:      1,
		IsActive:      true,
		Coupons:       []model.Coupon{{ID: "c-" + code, Code: code}},
	})
}

func TestCreditAppends(t *testing.T) {
	s := NewService(memstore.New(), coupon.NewEngine(), nil, zaptest.NewLogger(t), "test")
	ctx := context.Background()

	bal, err := s.Credit(ctx, "buyer-1", 500, model.CreditRefund, "late delivery", "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, bal)
	bal, err = s.Credit(ctx, "buyer-1", 250, model.CreditAdjustment, "goodwill", "ticket-9")
	require.NoError(t, err)
	assert.EqualValues(t, 750, bal)

	_, err = s.Credit(ctx, "buyer-1", 0, model.CreditRefund, "", "")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := s.Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.EqualValues(t, 750, got.Balance)
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, model.CreditRefund, got.Transactions[0].Type)

	empty, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Balance)
	assert.Empty(t, empty.Transactions)
}

func TestRedeemCoupon(t *testing.T) {
	st := memstore.New()
	seed(st, model.DiscountFixed, 1500, "BONUS15")
	seed(st, model.DiscountPercentage, 10, "PCT10")
	rec := &notify.Recorder{}
	s := NewService(st, coupon.NewEngine(), rec, zaptest.NewLogger(t), "test")
	ctx := context.Background()

	bal, ct, err := s.RedeemCoupon(ctx, "buyer-1", "BONUS15")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, bal)
	assert.Equal(t, model.CreditCouponBonus, ct.Type)

	_, _, err = s.RedeemCoupon(ctx, "buyer-1", "BONUS15")
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)

	_, _, err = s.RedeemCoupon(ctx, "buyer-1", "PCT10")
	require.ErrorIs(t, err, coupon.ErrNotCredit)

	got, err := s.Get(ctx, "buyer-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, got.Balance)
	assert.Len(t, rec.OfType(events.EventBuyerCreditRedeemed), 1)
	assert.Equal(t, 1, st.Counts()["coupon_usages"])
}

// A code spent at checkout cannot be redeemed as credit, and the other way round.
func TestCouponPaysOutThroughOnePathOnly(t *testing.T) {
	defer goleak.VerifyNone(t)
	log := zaptest.NewLogger(t)
	st := memstore.New()
	st.PutProduct(model.Product{ID: "p1", SellerID: "seller-a", PriceCents: 5000, Stock: 10})
	seed(st, model.DiscountFixed, 1000, "SHARED")

	engine := coupon.NewEngine()
	wallet := NewService(st, engine, nil, log, "test")
	orders := checkout.NewService(st, sequencer.New(st, log, nil), engine, stock.NewLedger(), nil, log, nil, checkout.Config{})

	var (
		wg                  sync.WaitGroup
		redeemErr, orderErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, redeemErr = wallet.RedeemCoupon(context.Background(), "buyer-1", "SHARED")
	}()
	go func() {
		defer wg.Done()
		_, orderErr = orders.CreateOrder(context.Background(), checkout.Request{
			BuyerID:         "buyer-1",
			Items:           []checkout.Line{{ProductID: "p1", Quantity: 1}},
			ShippingAddress: model.Address{Name: "Ana", Line1: "Jl. 1", City: "Bandung", Country: "ID"},
			CouponCode:      "SHARED",
		})
	}()
	wg.Wait()

	if redeemErr == nil {
		require.True(t, apperr.Is(orderErr, apperr.KindConflict), "%v", orderErr)
	} else {
		require.NoError(t, orderErr)
		require.True(t, apperr.Is(redeemErr, apperr.KindConflict), "%v", redeemErr)
	}
	assert.Equal(t, 1, st.Counts()["coupon_usages"])
}
