package model

import (
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderFulfilled  OrderStatus = "fulfilled"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type SubOrderStatus string

const (
	SubOrderPending    SubOrderStatus = "pending"
	SubOrderProcessing SubOrderStatus = "processing"
	SubOrderShipped    SubOrderStatus = "shipped"
	SubOrderDelivered  SubOrderStatus = "delivered"
	SubOrderCancelled  SubOrderStatus = "cancelled"
	SubOrderDisputed   SubOrderStatus = "disputed"
)

// PayoutStatus tracks whether a sub-order's earnings reached the seller ledger.
type PayoutStatus string

const (
	PayoutUnsettled PayoutStatus = "unsettled"
	PayoutCredited  PayoutStatus = "credited"
	PayoutReversed  PayoutStatus = "reversed"
)

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// Missing reports whether the address lacks the fields a shipment needs.
func (a Address) Missing() bool {
	return strings.TrimSpace(a.Name) == "" ||
		strings.TrimSpace(a.Line1) == "" ||
		strings.TrimSpace(a.City) == "" ||
		strings.TrimSpace(a.Country) == ""
}

type Order struct {
	ID              string
	Number          string
	BuyerID         string
	ShippingAddress Address
	ItemIDs         []string
	SubOrderIDs     []string
	TotalPrice      money.Cents
	DiscountAmount  money.Cents
	CouponID        string // empty when no coupon applied
	CouponCode      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is an immutable snapshot of a line at checkout time.
type OrderItem struct {
	ID         string
	OrderID    string
	SubOrderID string
	ProductID  string
	VariantID  string
	SellerID   string
	Quantity   int
	UnitPrice  money.Cents
	CreatedAt  time.Time
}

func (i OrderItem) LineTotal() money.Cents {
	return i.UnitPrice * money.Cents(i.Quantity)
}

type SellerSubOrder struct {
	ID               string
	OrderID          string
	SellerID         string
	ItemIDs          []string
	OriginalSubtotal money.Cents
	DiscountAmount   money.Cents
	Tax              money.Cents
	ShippingCost     money.Cents
	Total            money.Cents
	Status           SubOrderStatus
	PayoutStatus     PayoutStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderView is an order joined with its items and sub-orders.
type OrderView struct {
	Order     Order
	Items     []OrderItem
	SubOrders []SellerSubOrder
}
