package model

import (
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"time"
)

// SellerBalance partitions a seller's funds. Withdrawable is derived and must
// be refreshed with Recompute after any change to the other fields.
type SellerBalance struct {
	SellerID     string
	Balance      money.Cents
	Locked       money.Cents
	Pending      money.Cents
	Withdrawable money.Cents
	Version      int64
	UpdatedAt    time.Time
}

func (b SellerBalance) Recompute() SellerBalance {
	b.Withdrawable = money.Max(0, b.Balance-b.Locked-b.Pending)
	return b
}

// Consistent reports whether the withdrawable invariant holds.
func (b SellerBalance) Consistent() bool {
	return b.Withdrawable == money.Max(0, b.Balance-b.Locked-b.Pending) &&
		b.Balance >= 0 && b.Locked >= 0 && b.Pending >= 0
}

type LedgerOp string

const (
	LedgerCredit            LedgerOp = "credit"
	LedgerLock              LedgerOp = "lock"
	LedgerUnlock            LedgerOp = "unlock"
	LedgerWithdrawalReserve LedgerOp = "withdrawal_reserve"
	LedgerWithdrawalApprove LedgerOp = "withdrawal_approve"
	LedgerWithdrawalReject  LedgerOp = "withdrawal_reject"
	LedgerWithdrawalCancel  LedgerOp = "withdrawal_cancel"
	LedgerReverse           LedgerOp = "reverse"
)

// LedgerEntry is the append-only record of one balance mutation. The pair
// (SellerID, Op, Reference) is unique.
type LedgerEntry struct {
	ID        string
	SellerID  string
	Op        LedgerOp
	Amount    money.Cents
	Reference string
	Reason    string
	ActorID   string
	After     SellerBalance
	CreatedAt time.Time
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCancelled WithdrawalStatus = "cancelled"
)

type Withdrawal struct {
	ID          string
	SellerID    string
	Amount      money.Cents
	Method      PaymentMethodKind
	Status      WithdrawalStatus
	RequestedAt time.Time
	ProcessedAt *time.Time
	ProcessedBy string
	Note        string
}
