package ledger

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"go.uber.org/zap"
	"strings"
)

var ErrMethodNotPending = errors.New("payout method is not awaiting verification")

func validateMethod(m model.PaymentMethod) error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	switch v := m.(type) {
	case model.BankAccount:
		if blank(v.AccountName) || blank(v.AccountNumber) || blank(v.BankName) {
			return apperr.Validation("Bank account requires account name, account number and bank name")
		}
	case model.MobileMoney:
		if blank(v.Provider) || blank(v.PhoneNumber) {
			return apperr.Validation("Mobile money requires provider and phone number")
		}
	default:
		return apperr.Validation("Unsupported payout method")
	}
	return nil
}

// resetVerification puts a verified or rejected method back to pending and
// drops who vetted it and when. Pending methods are returned unchanged.
func resetVerification(m model.PaymentMethod) (model.PaymentMethod, bool) {
	switch m.Verification().Status {
	case model.VerificationVerified, model.VerificationRejected:
		return m.WithVerification(model.Verification{Status: model.VerificationPending}), true
	}
	return m, false
}

// UpdatePaymentMethod stores new payout details. New details start pending;
// changing the destination of a vetted method sends it back to pending so it
// is vetted again before the next withdrawal. Balances are untouched.
func (s *Service) UpdatePaymentMethod(ctx context.Context, sellerID string, m model.PaymentMethod) (model.PaymentMethod, error) {
	if err := requireSeller(sellerID); err != nil {
		return nil, err
	}
	if err := validateMethod(m); err != nil {
		return nil, err
	}

	var (
		out   model.PaymentMethod
		prev  model.VerificationStatus
		reset bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetPaymentMethod(ctx, sellerID, m.Kind())
		switch {
		case errors.Is(err, store.ErrNotFound):
			out = m.WithVerification(model.Verification{Status: model.VerificationPending})
		case err != nil:
			return err
		case cur.SameDestination(m):
			out = cur
			return nil
		default:
			prev = cur.Verification().Status
			out, reset = resetVerification(m.WithVerification(cur.Verification()))
		}
		return tx.SavePaymentMethod(ctx, sellerID, out, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	if reset {
		s.announceReset(ctx, sellerID, out.Kind(), prev)
	}
	return out, nil
}

// OnPayoutDetailsChanged handles details edited outside this service: a
// vetted method is reset to pending. It reports whether a reset happened.
func (s *Service) OnPayoutDetailsChanged(ctx context.Context, sellerID string, kind model.PaymentMethodKind) (bool, error) {
	var (
		prev  model.VerificationStatus
		reset bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetPaymentMethod(ctx, sellerID, kind)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, ErrMethodMissing, "No %s payout method on file", kind)
		}
		if err != nil {
			return err
		}
		prev = cur.Verification().Status
		var next model.PaymentMethod
		if next, reset = resetVerification(cur); !reset {
			return nil
		}
		return tx.SavePaymentMethod(ctx, sellerID, next, s.now().UTC())
	})
	if err != nil {
		return false, err
	}
	if reset {
		s.announceReset(ctx, sellerID, kind, prev)
	}
	return reset, nil
}

func (s *Service) announceReset(ctx context.Context, sellerID string, kind model.PaymentMethodKind, prev model.VerificationStatus) {
	s.log.Info("payout method reset to pending",
		zap.String("seller_id", sellerID), zap.String("method", string(kind)), zap.String("previous_status", string(prev)))
	notify.Emit(ctx, s.notifier, s.log, s.cfg.Producer, events.EventPayoutMethodReset, sellerID,
		events.PayoutMethodResetPayload{SellerID: sellerID, Method: string(kind), PreviousStatus: string(prev)})
}

func (s *Service) VerifyPaymentMethod(ctx context.Context, sellerID string, kind model.PaymentMethodKind, adminID string, approve bool, reason string) (model.PaymentMethod, error) {
	if !approve && strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("Rejection reason is required")
	}
	var out model.PaymentMethod
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetPaymentMethod(ctx, sellerID, kind)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, ErrMethodMissing, "No %s payout method on file", kind)
		}
		if err != nil {
			return err
		}
		if st := cur.Verification().Status; st != model.VerificationPending {
			return apperr.Wrap(apperr.KindConflict, ErrMethodNotPending, "Payout method is already %s", st)
		}

		at := s.now().UTC()
		v := model.Verification{Status: model.VerificationVerified, VerifiedAt: &at, VerifiedBy: adminID}
		if !approve {
			v.Status = model.VerificationRejected
			v.RejectionReason = reason
		}
		out = cur.WithVerification(v)
		return tx.SavePaymentMethod(ctx, sellerID, out, at)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("payout method reviewed",
		zap.String("seller_id", sellerID), zap.String("method", string(kind)),
		zap.String("status", string(out.Verification().Status)), zap.String("admin_id", adminID))
	return out, nil
}

func (s *Service) PaymentMethod(ctx context.Context, sellerID string, kind model.PaymentMethodKind) (model.PaymentMethod, error) {
	var out model.PaymentMethod
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetPaymentMethod(ctx, sellerID, kind)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindNotFound, ErrMethodMissing, "No %s payout method on file", kind)
	}
	return out, err
}
