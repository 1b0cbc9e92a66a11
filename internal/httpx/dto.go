package httpx

import (
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"time"
)

type itemResp struct {
	ID         string `json:"id"`
	SubOrderID string `json:"sub_order_id"`
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	SellerID   string `json:"seller_id"`
	Quantity   int    `json:"quantity"`
	UnitCents  int64  `json:"unit_price_cents"`
}

type subOrderResp struct {
	ID            string   `json:"id"`
	SellerID      string   `json:"seller_id"`
	ItemIDs       []string `json:"item_ids"`
	SubtotalCents int64    `json:"original_subtotal_cents"`
	DiscountCents int64    `json:"discount_cents"`
	TaxCents      int64    `json:"tax_cents"`
	ShippingCents int64    `json:"shipping_cents"`
	TotalCents    int64    `json:"total_cents"`
	Status        string   `json:"status"`
	PayoutStatus  string   `json:"payout_status"`
}

type orderResp struct {
	ID              string         `json:"id"`
	Number          string         `json:"order_number"`
	BuyerID         string         `json:"buyer_id"`
	ShippingAddress model.Address  `json:"shipping_address"`
	TotalCents      int64          `json:"total_cents"`
	DiscountCents   int64          `json:"discount_cents"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	Status          string         `json:"status"`
	PaymentStatus   string         `json:"payment_status"`
	CreatedAt       time.Time      `json:"created_at"`
	Items           []itemResp     `json:"items"`
	SubOrders       []subOrderResp `json:"sub_orders"`
	DegradedNumber  bool           `json:"degraded_number,omitempty"`
	Replayed        bool           `json:"idempotent_replay,omitempty"`
}

func toSubOrder(so model.SellerSubOrder) subOrderResp {
	return subOrderResp{
		ID:            so.ID,
		SellerID:      so.SellerID,
		ItemIDs:       so.ItemIDs,
		SubtotalCents: int64(so.OriginalSubtotal),
		DiscountCents: int64(so.DiscountAmount),
		TaxCents:      int64(so.Tax),
		ShippingCents: int64(so.ShippingCost),
		TotalCents:    int64(so.Total),
		Status:        string(so.Status),
		PayoutStatus:  string(so.PayoutStatus),
	}
}

func toOrder(v model.OrderView) orderResp {
	o := v.Order
	out := orderResp{
		ID:              o.ID,
		Number:          o.Number,
		BuyerID:         o.BuyerID,
		ShippingAddress: o.ShippingAddress,
		TotalCents:      int64(o.TotalPrice),
		DiscountCents:   int64(o.DiscountAmount),
		CouponCode:      o.CouponCode,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CreatedAt:       o.CreatedAt,
		Items:           make([]itemResp, 0, len(v.Items)),
		SubOrders:       make([]subOrderResp, 0, len(v.SubOrders)),
	}
	for _, it := range v.Items {
		out.Items = append(out.Items, itemResp{
			ID:         it.ID,
			SubOrderID: it.SubOrderID,
			ProductID:  it.ProductID,
			VariantID:  it.VariantID,
			SellerID:   it.SellerID,
			Quantity:   it.Quantity,
			UnitCents:  int64(it.UnitPrice),
		})
	}
	for _, so := range v.SubOrders {
		out.SubOrders = append(out.SubOrders, toSubOrder(so))
	}
	return out
}

type balanceResp struct {
	SellerID          string    `json:"seller_id"`
	BalanceCents      int64     `json:"balance_cents"`
	LockedCents       int64     `json:"locked_cents"`
	PendingCents      int64     `json:"pending_cents"`
	WithdrawableCents int64     `json:"withdrawable_cents"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toBalance(b model.SellerBalance) balanceResp {
	return balanceResp{
		SellerID:          b.SellerID,
		BalanceCents:      int64(b.Balance),
		LockedCents:       int64(b.Locked),
		PendingCents:      int64(b.Pending),
		WithdrawableCents: int64(b.Withdrawable),
		UpdatedAt:         b.UpdatedAt,
	}
}

type withdrawalResp struct {
	ID          string     `json:"id"`
	SellerID    string     `json:"seller_id"`
	AmountCents int64      `json:"amount_cents"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ProcessedBy string     `json:"processed_by,omitempty"`
	Note        string     `json:"note,omitempty"`
}

func toWithdrawal(w model.Withdrawal) withdrawalResp {
	return withdrawalResp{
		ID:          w.ID,
		SellerID:    w.SellerID,
		AmountCents: int64(w.Amount),
		Method:      string(w.Method),
		Status:      string(w.Status),
		RequestedAt: w.RequestedAt,
		ProcessedAt: w.ProcessedAt,
		ProcessedBy: w.ProcessedBy,
		Note:        w.Note,
	}
}

type withdrawalWithBalance struct {
	Withdrawal withdrawalResp `json:"withdrawal"`
	Balance    balanceResp    `json:"balance"`
}

type paymentMethodResp struct {
	Kind    string              `json:"kind"`
	Details model.PaymentMethod `json:"details"`
}

type creditTxnResp struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type creditResp struct {
	BuyerID      string          `json:"buyer_id"`
	BalanceCents int64           `json:"balance_cents"`
	Transactions []creditTxnResp `json:"transactions"`
}

func toCreditTxn(t model.CreditTransaction) creditTxnResp {
	return creditTxnResp{
		ID:          t.ID,
		AmountCents: int64(t.Amount),
		Type:        string(t.Type),
		Description: t.Description,
		Reference:   t.Reference,
		CreatedAt:   t.CreatedAt,
	}
}
