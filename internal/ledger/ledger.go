// Package ledger owns seller balances: balance, locked, pending and the
// derived withdrawable amount. Every mutation is a delta applied under a
// version guard and recorded as a ledger entry.
package ledger

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/metrics"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

var (
	ErrBusy                 = errors.New("seller balance contended")
	ErrWithdrawalNotPending = errors.New("withdrawal is not pending")
	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrAlreadyReversed      = errors.New("reference already reversed")

	errVersionConflict = errors.New("seller balance version changed")
	errAlreadyApplied  = errors.New("ledger entry already recorded")
)

type Config struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Producer    string
}

type Service struct {
	store    store.Store
	notifier notify.Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config
	backoff  *backoff

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(st store.Store, n notify.Notifier, log *zap.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Service{
		store:    st,
		notifier: n,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		backoff:  newBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		now:      time.Now,
		newID:    uuid.NewString,
		sleep:    sleepCtx,
	}
}

// posting describes one balance mutation.
type posting struct {
	sellerID  string
	op        model.LedgerOp
	amount    money.Cents
	reference string
	reason    string
	actor     string
}

// post applies p to the seller's balance inside tx. A concurrent writer that
// bumped the version first surfaces as errVersionConflict and the whole unit
// of work is retried by mutate.
func (s *Service) post(ctx context.Context, tx store.SellerTx, p posting) (model.SellerBalance, error) {
	cur, err := tx.GetSellerBalance(ctx, p.sellerID)
	if err != nil {
		return cur, err
	}
	next, err := apply(p.op, cur, p.amount)
	if err != nil {
		return cur, err
	}
	at := s.now().UTC()
	next.SellerID = p.sellerID
	next.Version = cur.Version + 1
	next.UpdatedAt = at

	ok, err := tx.SaveSellerBalance(ctx, next, cur.Version)
	if err != nil {
		return cur, err
	}
	if !ok {
		return cur, errVersionConflict
	}

	err = tx.InsertLedgerEntry(ctx, model.LedgerEntry{
		ID:        s.newID(),
		SellerID:  p.sellerID,
		Op:        p.op,
		Amount:    p.amount,
		Reference: p.reference,
		Reason:    p.reason,
		ActorID:   p.actor,
		After:     next,
		CreatedAt: at,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return cur, errAlreadyApplied
	}
	return next, err
}

// mutate runs fn in a transaction, retrying version conflicts with capped
// exponential backoff.
func (s *Service) mutate(ctx context.Context, op model.LedgerOp, sellerID string, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.InTx(ctx, fn)
		if !errors.Is(err, errVersionConflict) {
			s.metrics.LedgerOp(string(op), outcome(err))
			return err
		}
		if attempt+1 >= s.cfg.MaxRetries {
			s.metrics.LedgerOp(string(op), "busy")
			s.log.Warn("seller balance still contended after retries",
				zap.String("seller_id", sellerID), zap.String("op", string(op)), zap.Int("attempts", attempt+1))
			return apperr.Wrap(apperr.KindConflict, ErrBusy, "Seller balance is busy, please retry")
		}
		s.metrics.LedgerRetry()
		if err := s.sleep(ctx, s.backoff.delay(attempt)); err != nil {
			return apperr.Wrap(apperr.KindTransient, err, "ledger retry interrupted")
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errAlreadyApplied):
		return "duplicate"
	default:
		return apperr.KindOf(err).String()
	}
}

func requireSeller(sellerID string) error {
	if strings.TrimSpace(sellerID) == "" {
		return apperr.Validation("Seller is required")
	}
	return nil
}

// Credit posts earnings for reference (a fulfilled sub-order). Crediting the
// same reference twice is a no-op that returns the current balance.
func (s *Service) Credit(ctx context.Context, sellerID string, amount money.Cents, reference string) (model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.SellerBalance{}, err
	}
	if reference == "" {
		return model.SellerBalance{}, apperr.Validation("Credit reference is required")
	}

	var out model.SellerBalance
	err := s.mutate(ctx, model.LedgerCredit, sellerID, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = s.post(ctx, tx, posting{sellerID: sellerID, op: model.LedgerCredit, amount: amount, reference: reference})
		return err
	})
	if errors.Is(err, errAlreadyApplied) {
		s.log.Info("credit already posted", zap.String("seller_id", sellerID), zap.String("reference", reference))
		return s.Balance(ctx, sellerID)
	}
	if err != nil {
		return out, err
	}

	notify.Emit(ctx, s.notifier, s.log, s.cfg.Producer, events.EventSellerBalanceCredited, reference,
		events.SellerBalanceCreditedPayload{SellerID: sellerID, Reference: reference, AmountCents: int64(amount)})
	return out, nil
}

// Lock holds amount for a dispute. amount may not exceed balance minus what
// is already locked, so repeated locks never hold more than the balance.
func (s *Service) Lock(ctx context.Context, sellerID string, amount money.Cents, reason, adminID string) (model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.SellerBalance{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return model.SellerBalance{}, apperr.Validation("Lock reason is required")
	}
	return s.simple(ctx, posting{sellerID: sellerID, op: model.LedgerLock, amount: amount,
		reference: s.newID(), reason: reason, actor: adminID})
}

func (s *Service) Unlock(ctx context.Context, sellerID string, amount money.Cents, reason, adminID string) (model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.SellerBalance{}, err
	}
	return s.simple(ctx, posting{sellerID: sellerID, op: model.LedgerUnlock, amount: amount,
		reference: s.newID(), reason: reason, actor: adminID})
}

// Reverse takes back earnings for a refund. reference identifies the refund;
// reversing the same reference twice fails.
func (s *Service) Reverse(ctx context.Context, sellerID string, amount money.Cents, reference, reason, actor string) (model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.SellerBalance{}, err
	}
	if reference == "" {
		return model.SellerBalance{}, apperr.Validation("Reversal reference is required")
	}
	out, err := s.simple(ctx, posting{sellerID: sellerID, op: model.LedgerReverse, amount: amount,
		reference: reference, reason: reason, actor: actor})
	if errors.Is(err, errAlreadyApplied) {
		return out, apperr.Wrap(apperr.KindConflict, ErrAlreadyReversed, "Reference %s was already reversed", reference)
	}
	return out, err
}

func (s *Service) simple(ctx context.Context, p posting) (model.SellerBalance, error) {
	var out model.SellerBalance
	err := s.mutate(ctx, p.op, p.sellerID, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = s.post(ctx, tx, p)
		return err
	})
	if err != nil {
		return model.SellerBalance{}, err
	}
	s.log.Info("seller balance updated",
		zap.String("seller_id", p.sellerID),
		zap.String("op", string(p.op)),
		zap.Stringer("amount", p.amount),
		zap.String("actor_id", p.actor))
	return out, nil
}

// unknown sellers have an all-zero balance
func (s *Service) Balance(ctx context.Context, sellerID string) (model.SellerBalance, error) {
	var out model.SellerBalance
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetSellerBalance(ctx, sellerID)
		return err
	})
	return out.Recompute(), err
}

func (s *Service) Entries(ctx context.Context, sellerID string, limit int) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListLedgerEntries(ctx, sellerID, limit)
		return err
	})
	return out, err
}
