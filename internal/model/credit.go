package model

import (
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"time"
)

type CreditType string

const (
	CreditCouponBonus CreditType = "coupon_bonus"
	CreditRefund      CreditType = "refund"
	CreditAdjustment  CreditType = "adjustment"
)

type CreditTransaction struct {
	ID          string
	BuyerID     string
	Amount      money.Cents
	Type        CreditType
	Description string
	Reference   string
	CreatedAt   time.Time
}

// BuyerCreditBalance is the running sum of Transactions.
type BuyerCreditBalance struct {
	BuyerID      string
	Balance      money.Cents
	Transactions []CreditTransaction
}
