package ledger

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"go.uber.org/zap"
)

var (
	ErrMethodMissing     = errors.New("payout method not configured")
	ErrMethodNotVerified = errors.New("payout method not verified")
)

type Outcome string

const (
	Approve Outcome = "approve"
	Reject  Outcome = "reject"
)

func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case Approve, Reject:
		return Outcome(s), true
	}
	return "", false
}

// ReserveForWithdrawal moves amount from withdrawable into pending and opens
// a withdrawal to the given payout method, which must be verified.
func (s *Service) ReserveForWithdrawal(ctx context.Context, sellerID string, amount money.Cents, kind model.PaymentMethodKind) (model.Withdrawal, model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.Withdrawal{}, model.SellerBalance{}, err
	}

	var (
		w   model.Withdrawal
		bal model.SellerBalance
	)
	err := s.mutate(ctx, model.LedgerWithdrawalReserve, sellerID, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.GetPaymentMethod(ctx, sellerID, kind)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.KindValidation, ErrMethodMissing, "No %s payout method on file", kind)
		}
		if err != nil {
			return err
		}
		if m.Verification().Status != model.VerificationVerified {
			return apperr.Wrap(apperr.KindConflict, ErrMethodNotVerified,
				"Payout method %s is %s and cannot receive withdrawals", kind, m.Verification().Status)
		}

		w = model.Withdrawal{
			ID:          s.newID(),
			SellerID:    sellerID,
			Amount:      amount,
			Method:      kind,
			Status:      model.WithdrawalPending,
			RequestedAt: s.now().UTC(),
		}
		bal, err = s.post(ctx, tx, posting{sellerID: sellerID, op: model.LedgerWithdrawalReserve, amount: amount, reference: w.ID})
		if err != nil {
			return err
		}
		return tx.InsertWithdrawal(ctx, w)
	})
	if err != nil {
		return model.Withdrawal{}, model.SellerBalance{}, err
	}

	s.log.Info("withdrawal requested",
		zap.String("seller_id", sellerID), zap.String("withdrawal_id", w.ID), zap.Stringer("amount", amount))
	notify.Emit(ctx, s.notifier, s.log, s.cfg.Producer, events.EventWithdrawalRequested, w.ID,
		events.WithdrawalRequestedPayload{WithdrawalID: w.ID, SellerID: sellerID, AmountCents: int64(amount), Method: string(kind)})
	return w, bal, nil
}

// SettleWithdrawal closes a pending withdrawal. Approval means the money left
// the account; rejection returns it to the available pool.
func (s *Service) SettleWithdrawal(ctx context.Context, withdrawalID string, outcome Outcome, adminID, note string) (model.Withdrawal, model.SellerBalance, error) {
	var (
		to model.WithdrawalStatus
		op model.LedgerOp
	)
	switch outcome {
	case Approve:
		to, op = model.WithdrawalApproved, model.LedgerWithdrawalApprove
	case Reject:
		to, op = model.WithdrawalRejected, model.LedgerWithdrawalReject
	default:
		return model.Withdrawal{}, model.SellerBalance{}, apperr.Validation("Unknown outcome %q", outcome)
	}
	return s.closeWithdrawal(ctx, withdrawalID, "", to, op, adminID, note)
}

func (s *Service) CancelWithdrawal(ctx context.Context, sellerID, withdrawalID string) (model.Withdrawal, model.SellerBalance, error) {
	if err := requireSeller(sellerID); err != nil {
		return model.Withdrawal{}, model.SellerBalance{}, err
	}
	return s.closeWithdrawal(ctx, withdrawalID, sellerID, model.WithdrawalCancelled, model.LedgerWithdrawalCancel, sellerID, "cancelled by seller")
}

func (s *Service) closeWithdrawal(ctx context.Context, id, owner string, to model.WithdrawalStatus, op model.LedgerOp, actor, note string) (model.Withdrawal, model.SellerBalance, error) {
	var (
		w   model.Withdrawal
		bal model.SellerBalance
	)
	err := s.mutate(ctx, op, owner, func(ctx context.Context, tx store.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && owner != "" && w.SellerID != owner) {
			return apperr.Wrap(apperr.KindNotFound, ErrWithdrawalNotFound, "Withdrawal %s not found", id)
		}
		if err != nil {
			return err
		}
		at := s.now().UTC()
		ok, err := tx.TransitionWithdrawal(ctx, id, model.WithdrawalPending, to, actor, note, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.KindConflict, ErrWithdrawalNotPending, "Withdrawal %s is already %s", id, w.Status)
		}
		w.Status, w.ProcessedAt, w.ProcessedBy, w.Note = to, &at, actor, note

		bal, err = s.post(ctx, tx, posting{sellerID: w.SellerID, op: op, amount: w.Amount, reference: w.ID, reason: note, actor: actor})
		return err
	})
	if err != nil {
		return model.Withdrawal{}, model.SellerBalance{}, err
	}

	s.log.Info("withdrawal closed",
		zap.String("seller_id", w.SellerID), zap.String("withdrawal_id", w.ID),
		zap.String("status", string(to)), zap.String("actor_id", actor))
	notify.Emit(ctx, s.notifier, s.log, s.cfg.Producer, events.EventWithdrawalSettled, w.ID,
		events.WithdrawalSettledPayload{WithdrawalID: w.ID, SellerID: w.SellerID, AmountCents: int64(w.Amount), Status: string(to)})
	return w, bal, nil
}

func (s *Service) Withdrawal(ctx context.Context, id string) (model.Withdrawal, error) {
	var w model.Withdrawal
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		w, err = tx.GetWithdrawal(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return w, apperr.Wrap(apperr.KindNotFound, ErrWithdrawalNotFound, "Withdrawal %s not found", id)
	}
	return w, err
}
