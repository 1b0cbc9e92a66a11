package model

import (
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// CouponBatch is a seller-issued group of codes. DiscountValue is a whole
// percent for percentage batches and cents for fixed batches.
type CouponBatch struct {
	ID             string
	SellerID       string
	Name           string
	DiscountType   DiscountType
	DiscountValue  int64
	ValidFrom      time.Time
	ExpiresAt      time.Time
	MaxUsage       int
	MinOrderAmount money.Cents
	IsActive       bool
	UsageCount     int
	Coupons        []Coupon
}

type Coupon struct {
	ID          string
	BatchID     string
	Code        string
	RecipientID string // empty when anyone may redeem
	Used        bool
	UsedAt      *time.Time
	UsedBy      string
	UsageCount  int
}

type CouponUsage struct {
	ID       string
	BatchID  string
	CouponID string
	BuyerID  string
	OrderID  string // empty for direct credit redemption
	Discount money.Cents
	UsedAt   time.Time
}
