package ledger

import (
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
)

var (
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientLocked       = errors.New("insufficient locked funds")
	ErrInsufficientWithdrawable = errors.New("insufficient withdrawable balance")
	ErrInsufficientPending      = errors.New("insufficient pending balance")
)

// apply is the delta for op. It never writes; the caller persists the result
// under the version guard. The returned balance has Withdrawable recomputed.
func apply(op model.LedgerOp, b model.SellerBalance, amount money.Cents) (model.SellerBalance, error) {
	if amount <= 0 {
		return b, apperr.Wrap(apperr.KindValidation, ErrInvalidAmount, "Amount must be greater than zero")
	}
	b = b.Recompute()

	switch op {
	case model.LedgerCredit:
		b.Balance += amount

	case model.LedgerLock:
		// only funds not already held can be locked
		if amount > b.Balance-b.Locked {
			return b, apperr.Wrap(apperr.KindConflict, ErrInsufficientBalance,
				"Cannot lock %s, only %s is available", amount, money.Max(0, b.Balance-b.Locked))
		}
		b.Locked += amount

	case model.LedgerUnlock:
		if amount > b.Locked {
			return b, apperr.Wrap(apperr.KindConflict, ErrInsufficientLocked,
				"Cannot unlock %s, only %s is locked", amount, b.Locked)
		}
		b.Locked -= amount

	case model.LedgerWithdrawalReserve:
		if amount > b.Withdrawable {
			return b, apperr.Wrap(apperr.KindConflict, ErrInsufficientWithdrawable,
				"Withdrawal of %s exceeds withdrawable balance of %s", amount, b.Withdrawable)
		}
		b.Pending += amount

	case model.LedgerWithdrawalApprove:
		if amount > b.Pending || amount > b.Balance {
			return b, apperr.Wrap(apperr.KindIntegrity, ErrInsufficientPending,
				"approve %s with pending %s balance %s", amount, b.Pending, b.Balance)
		}
		b.Balance -= amount
		b.Pending -= amount

	case model.LedgerWithdrawalReject, model.LedgerWithdrawalCancel:
		if amount > b.Pending {
			return b, apperr.Wrap(apperr.KindIntegrity, ErrInsufficientPending,
				"release %s with pending %s", amount, b.Pending)
		}
		b.Pending -= amount

	case model.LedgerReverse:
		// in-flight withdrawals stay covered
		if amount > b.Balance-b.Pending {
			return b, apperr.Wrap(apperr.KindConflict, ErrInsufficientBalance,
				"Cannot reverse %s, only %s is available", amount, money.Max(0, b.Balance-b.Pending))
		}
		b.Balance -= amount

	default:
		return b, apperr.Validation("unknown ledger operation %q", op)
	}
	return b.Recompute(), nil
}
