package events

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderCreated          = "OrderCreated"
	EventSubOrderFulfilled     = "SubOrderFulfilled"
	EventWithdrawalRequested   = "WithdrawalRequested"
	EventWithdrawalSettled     = "WithdrawalSettled"
	EventPayoutMethodReset     = "PayoutMethodReset"
	EventSellerBalanceCredited = "SellerBalanceCredited"
	EventBuyerCreditRedeemed   = "BuyerCreditRedeemed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number, sub-order or withdrawal id
	Payload       json.RawMessage `json:"payload"`
}

// New wraps payload in a v1 envelope.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// ---- payloads ----

type OrderLine struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type SellerShare struct {
	SubOrderID    string `json:"sub_order_id"`
	SellerID      string `json:"seller_id"`
	TotalCents    int64  `json:"total_cents"`
	DiscountCents int64  `json:"discount_cents"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	BuyerID       string        `json:"buyer_id"`
	Items         []OrderLine   `json:"items"`
	Sellers       []SellerShare `json:"sellers"`
	TotalCents    int64         `json:"total_cents"`
	DiscountCents int64         `json:"discount_cents"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	Degraded      bool          `json:"degraded_number,omitempty"`
}

type SubOrderFulfilledPayload struct {
	OrderID       string `json:"order_id"`
	SubOrderID    string `json:"sub_order_id"`
	SellerID      string `json:"seller_id"`
	EarningsCents int64  `json:"earnings_cents"`
}

type WithdrawalRequestedPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	SellerID     string `json:"seller_id"`
	AmountCents  int64  `json:"amount_cents"`
	Method       string `json:"method"`
}

type WithdrawalSettledPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	SellerID     string `json:"seller_id"`
	AmountCents  int64  `json:"amount_cents"`
	Status       string `json:"status"` // approved | rejected | cancelled
}

type PayoutMethodResetPayload struct {
	SellerID       string `json:"seller_id"`
	Method         string `json:"method"`
	PreviousStatus string `json:"previous_status"`
}

type SellerBalanceCreditedPayload struct {
	SellerID    string `json:"seller_id"`
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
}

type BuyerCreditRedeemedPayload struct {
	BuyerID     string `json:"buyer_id"`
	CouponCode  string `json:"coupon_code"`
	AmountCents int64  `json:"amount_cents"`
}
