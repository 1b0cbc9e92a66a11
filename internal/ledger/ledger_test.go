package ledger

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/ariefcatur/go-seller-settlement/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const seller = "seller-1"

var bank = model.BankAccount{AccountName: "Toko Ana", AccountNumber: "1234567890", BankName: "BCA"}

func newService(t *testing.T, st store.Store) (*Service, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	s := NewService(st, rec, zaptest.NewLogger(t), nil, Config{MaxRetries: 4, BaseBackoff: time.Millisecond})
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s, rec
}

// verified sets up a verified bank account for seller.
func verified(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpdatePaymentMethod(ctx, seller, bank)
	require.NoError(t, err)
	_, err = s.VerifyPaymentMethod(ctx, seller, model.KindBankAccount, "admin-1", true, "")
	require.NoError(t, err)
}

func TestCreditIsIdempotentPerReference(t *testing.T) {
	s, rec := newService(t, memstore.New())
	ctx := context.Background()

	b, err := s.Credit(ctx, seller, 5000, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5000, b.Balance)
	assert.EqualValues(t, 5000, b.Withdrawable)
	assert.EqualValues(t, 1, b.Version)

	b, err = s.Credit(ctx, seller, 5000, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 5000, b.Balance)
	assert.EqualValues(t, 1, b.Version)

	entries, err := s.Entries(ctx, seller, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerCredit, entries[0].Op)
	assert.Len(t, rec.OfType(events.EventSellerBalanceCredited), 1)
}

func TestLockUnlock(t *testing.T) {
	s, _ := newService(t, memstore.New())
	ctx := context.Background()
	_, err := s.Credit(ctx, seller, 10000, "sub-1")
	require.NoError(t, err)

	b, err := s.Lock(ctx, seller, 4000, "dispute #7", "admin-1")
	require.NoError(t, err)
	assert.EqualValues(t, 4000, b.Locked)
	assert.EqualValues(t, 6000, b.Withdrawable)

	_, err = s.Lock(ctx, seller, 6001, "dispute #8", "admin-1")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = s.Unlock(ctx, seller, 4001, "resolved", "admin-1")
	require.ErrorIs(t, err, ErrInsufficientLocked)
	require.True(t, apperr.Is(err, apperr.KindConflict))

	b, err = s.Unlock(ctx, seller, 4000, "resolved", "admin-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.Locked)
	assert.EqualValues(t, 10000, b.Withdrawable)

	_, err = s.Lock(ctx, seller, 100, "", "admin-1")
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = s.Lock(ctx, seller, 0, "why", "admin-1")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestReserveBeyondWithdrawableLeavesPendingUnchanged(t *testing.T) {
	s, _ := newService(t, memstore.New())
	ctx := context.Background()
	verified(t, s)
	_, err := s.Credit(ctx, seller, 10000, "sub-1")
	require.NoError(t, err)
	_, err = s.Lock(ctx, seller, 3000, "dispute", "admin-1")
	require.NoError(t, err)

	_, _, err = s.ReserveForWithdrawal(ctx, seller, 7001, model.KindBankAccount)
	require.ErrorIs(t, err, ErrInsufficientWithdrawable)
	require.True(t, apperr.Is(err, apperr.KindConflict))

	b, err := s.Balance(ctx, seller)
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.Pending)
	assert.EqualValues(t, 7000, b.Withdrawable)
}

func TestWithdrawalLifecycle(t *testing.T) {
	s, rec := newService(t, memstore.New())
	ctx := context.Background()
	verified(t, s)
	_, err := s.Credit(ctx, seller, 10000, "sub-1")
	require.NoError(t, err)

	w1, b, err := s.ReserveForWithdrawal(ctx, seller, 4000, model.KindBankAccount)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalPending, w1.Status)
	assert.EqualValues(t, 4000, b.Pending)
	assert.EqualValues(t, 6000, b.Withdrawable)

	w1, b, err = s.SettleWithdrawal(ctx, w1.ID, Approve, "admin-1", "paid")
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalApproved, w1.Status)
	assert.EqualValues(t, 6000, b.Balance)
	assert.EqualValues(t, 0, b.Pending)

	_, _, err = s.SettleWithdrawal(ctx, w1.ID, Reject, "admin-1", "again")
	require.ErrorIs(t, err, ErrWithdrawalNotPending)

	w2, _, err := s.ReserveForWithdrawal(ctx, seller, 1000, model.KindBankAccount)
	require.NoError(t, err)
	_, b, err = s.SettleWithdrawal(ctx, w2.ID, Reject, "admin-1", "name mismatch")
	require.NoError(t, err)
	assert.EqualValues(t, 6000, b.Balance)
	assert.EqualValues(t, 6000, b.Withdrawable)

	w3, _, err := s.ReserveForWithdrawal(ctx, seller, 500, model.KindBankAccount)
	require.NoError(t, err)
	_, _, err = s.CancelWithdrawal(ctx, "someone-else", w3.ID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	w3, b, err = s.CancelWithdrawal(ctx, seller, w3.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalCancelled, w3.Status)
	assert.EqualValues(t, 0, b.Pending)

	assert.Len(t, rec.OfType(events.EventWithdrawalRequested), 3)
	assert.Len(t, rec.OfType(events.EventWithdrawalSettled), 3)
}

func TestReserveRequiresVerifiedMethod(t *testing.T) {
	s, _ := newService(t, memstore.New())
	ctx := context.Background()
	_, err := s.Credit(ctx, seller, 10000, "sub-1")
	require.NoError(t, err)

	_, _, err = s.ReserveForWithdrawal(ctx, seller, 100, model.KindBankAccount)
	require.ErrorIs(t, err, ErrMethodMissing)

	_, err = s.UpdatePaymentMethod(ctx, seller, bank)
	require.NoError(t, err)
	_, _, err = s.ReserveForWithdrawal(ctx, seller, 100, model.KindBankAccount)
	require.ErrorIs(t, err, ErrMethodNotVerified)
}

func TestChangedBankDetailsResetVerification(t *testing.T) {
	s, rec := newService(t, memstore.New())
	ctx := context.Background()
	verified(t, s)
	_, err := s.Credit(ctx, seller, 10000, "sub-1")
	require.NoError(t, err)
	before, err := s.Balance(ctx, seller)
	require.NoError(t, err)

	same, err := s.UpdatePaymentMethod(ctx, seller, bank)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationVerified, same.Verification().Status, "same details keep their status")

	moved := bank
	moved.AccountNumber = "9999999999"
	m, err := s.UpdatePaymentMethod(ctx, seller, moved)
	require.NoError(t, err)
	v := m.Verification()
	assert.Equal(t, model.VerificationPending, v.Status)
	assert.Nil(t, v.VerifiedAt)
	assert.Empty(t, v.VerifiedBy)

	after, err := s.Balance(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, _, err = s.ReserveForWithdrawal(ctx, seller, 100, model.KindBankAccount)
	require.ErrorIs(t, err, ErrMethodNotVerified)

	resets := rec.OfType(events.EventPayoutMethodReset)
	require.Len(t, resets, 1)
}

func TestRejectedMethodResetsOnExternalChange(t *testing.T) {
	s, _ := newService(t, memstore.New())
	ctx := context.Background()
	mm := model.MobileMoney{Provider: "gopay", PhoneNumber: "0812"}
	_, err := s.UpdatePaymentMethod(ctx, seller, mm)
	require.NoError(t, err)

	_, err = s.VerifyPaymentMethod(ctx, seller, model.KindMobileMoney, "admin-1", false, "")
	require.True(t, apperr.Is(err, apperr.KindValidation))
	m, err := s.VerifyPaymentMethod(ctx, seller, model.KindMobileMoney, "admin-1", false, "name mismatch")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationRejected, m.Verification().Status)

	_, err = s.VerifyPaymentMethod(ctx, seller, model.KindMobileMoney, "admin-1", true, "")
	require.ErrorIs(t, err, ErrMethodNotPending)

	reset, err := s.OnPayoutDetailsChanged(ctx, seller, model.KindMobileMoney)
	require.NoError(t, err)
	assert.True(t, reset)
	reset, err = s.OnPayoutDetailsChanged(ctx, seller, model.KindMobileMoney)
	require.NoError(t, err)
	assert.False(t, reset)

	m, err = s.PaymentMethod(ctx, seller, model.KindMobileMoney)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, m.Verification().Status)
	assert.Empty(t, m.Verification().RejectionReason)
}

func TestReverse(t *testing.T) {
	s, _ := newService(t, memstore.New())
	ctx := context.Background()
	_, err := s.Credit(ctx, seller, 5000, "sub-1")
	require.NoError(t, err)

	b, err := s.Reverse(ctx, seller, 2000, "refund-1", "buyer refund", "admin-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3000, b.Balance)

	_, err = s.Reverse(ctx, seller, 100, "refund-1", "buyer refund", "admin-1")
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.ErrorIs(t, err, ErrAlreadyReversed)
	_, err = s.Reverse(ctx, seller, 3001, "refund-2", "buyer refund", "admin-1")
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestInvariantHoldsAcrossRandomOperations(t *testing.T) {
	st := memstore.New()
	s, _ := newService(t, st)
	ctx := context.Background()
	verified(t, s)
	rnd := rand.New(rand.NewSource(42))

	var open []string
	for i := 0; i < 300; i++ {
		amt := money.Cents(rnd.Intn(3000) + 1)
		switch rnd.Intn(6) {
		case 0, 1:
			_, _ = s.Credit(ctx, seller, amt, fmt.Sprintf("ref-%d", i))
		case 2:
			_, _ = s.Lock(ctx, seller, amt, "dispute", "admin")
		case 3:
			_, _ = s.Unlock(ctx, seller, amt, "resolved", "admin")
		case 4:
			if w, _, err := s.ReserveForWithdrawal(ctx, seller, amt, model.KindBankAccount); err == nil {
				open = append(open, w.ID)
			}
		case 5:
			if len(open) > 0 {
				id := open[0]
				open = open[1:]
				outcome := Approve
				if rnd.Intn(2) == 0 {
					outcome = Reject
				}
				_, _, _ = s.SettleWithdrawal(ctx, id, outcome, "admin", "")
			}
		}

		b, err := s.Balance(ctx, seller)
		require.NoError(t, err)
		require.True(t, b.Consistent(), "step %d: %+v", i, b)
	}

	entries, err := s.Entries(ctx, seller, 0)
	require.NoError(t, err)
	for _, e := range entries {
		require.True(t, e.After.Consistent(), "%s %+v", e.Op, e.After)
	}
}

func TestConcurrentCreditsLoseNoUpdate(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _ := newService(t, memstore.New())
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Credit(ctx, seller, 100, fmt.Sprintf("sub-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	b, err := s.Balance(ctx, seller)
	require.NoError(t, err)
	assert.EqualValues(t, n*100, b.Balance)
	assert.EqualValues(t, n, b.Version)
}

// contended makes the first n balance writes lose the version race.
type contended struct {
	store.Store
	left atomic.Int32
}

type contendedTx struct {
	store.Tx
	c *contended
}

func (c *contended) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return c.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &contendedTx{Tx: tx, c: c})
	})
}

func (t *contendedTx) SaveSellerBalance(ctx context.Context, b model.SellerBalance, expected int64) (bool, error) {
	if t.c.left.Add(-1) >= 0 {
		return false, nil
	}
	return t.Tx.SaveSellerBalance(ctx, b, expected)
}

func TestVersionConflictIsRetried(t *testing.T) {
	c := &contended{Store: memstore.New()}
	c.left.Store(2)
	s, _ := newService(t, c)

	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	b, err := s.Credit(context.Background(), seller, 700, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 700, b.Balance)
	require.Len(t, slept, 2)
	assert.GreaterOrEqual(t, slept[1], 2*time.Millisecond)

	entries, err := s.Entries(context.Background(), seller, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "lost attempts leave no entries")
}

func TestVersionConflictGivesUp(t *testing.T) {
	c := &contended{Store: memstore.New()}
	c.left.Store(100)
	s, _ := newService(t, c)

	_, err := s.Credit(context.Background(), seller, 700, "sub-1")
	require.ErrorIs(t, err, ErrBusy)
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestBackoffIsCapped(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 80*time.Millisecond)
	for attempt := 0; attempt < 10; attempt++ {
		d := b.delay(attempt)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	}
}
