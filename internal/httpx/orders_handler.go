package httpx

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/checkout"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/orders"
	"github.com/ariefcatur/go-seller-settlement/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
)

// Idempotency maps a buyer's Idempotency-Key to the order it produced.
type Idempotency interface {
	Begin(ctx context.Context, buyerID, key string) (string, error)
	Complete(ctx context.Context, buyerID, key, orderNumber string) error
	Abort(ctx context.Context, buyerID, key string) error
}

type OrdersHandler struct {
	Checkout *checkout.Service
	Orders   *orders.Service
	Idem     Idempotency // optional
	Log      *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.With(RequireRole(RoleBuyer)).Post("/checkout", h.checkout)
	r.Get("/orders/{number}", h.getOrder)
	r.With(RequireRole(RoleSeller, RoleAdmin)).Patch("/suborders/{id}/status", h.transition)
}

type checkoutReq struct {
	Items           []checkout.Line `json:"items"`
	ShippingAddress model.Address   `json:"shipping_address"`
	CouponCode      string          `json:"coupon_code,omitempty"`
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req checkoutReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.Idem != nil {
		num, err := h.Idem.Begin(r.Context(), id.Subject, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeJSON(w, http.StatusConflict, errorBody{Error: "a checkout with this Idempotency-Key is still running", Kind: "conflict"})
			return
		case err != nil:
			// the database is still the source of truth; run without the shortcut
			h.Log.Warn("idempotency store unavailable", zap.Error(err))
			key = ""
		case num != "":
			v, err := h.Orders.Get(r.Context(), num)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			resp := toOrder(v)
			resp.Replayed = true
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	res, err := h.Checkout.CreateOrder(r.Context(), checkout.Request{
		BuyerID:         id.Subject,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		CouponCode:      req.CouponCode,
	})
	if key != "" && h.Idem != nil {
		if err != nil {
			_ = h.Idem.Abort(context.WithoutCancel(r.Context()), id.Subject, key)
		} else if cerr := h.Idem.Complete(context.WithoutCancel(r.Context()), id.Subject, key, res.Order.Number); cerr != nil {
			h.Log.Warn("idempotency complete", zap.String("order_number", res.Order.Number), zap.Error(cerr))
		}
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	resp := toOrder(res.OrderView)
	resp.DegradedNumber = res.DegradedNumber
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	number := chi.URLParam(r, "number")

	v, err := h.Orders.Get(r.Context(), number)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !canView(id, v) {
		writeError(w, r, h.Log, apperr.NotFound("Order %s not found", number))
		return
	}
	writeJSON(w, http.StatusOK, toOrder(v))
}

func canView(id Identity, v model.OrderView) bool {
	switch id.Role {
	case RoleAdmin:
		return true
	case RoleBuyer:
		return v.Order.BuyerID == id.Subject
	case RoleSeller:
		for _, so := range v.SubOrders {
			if so.SellerID == id.Subject {
				return true
			}
		}
	}
	return false
}

type transitionReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req transitionReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	to, ok := orders.ParseSubOrderStatus(req.Status)
	if !ok {
		writeError(w, r, h.Log, apperr.Validation("Unknown status %q", req.Status))
		return
	}

	seller := id.Subject
	if id.Role == RoleAdmin {
		seller = ""
	}
	so, err := h.Orders.TransitionSubOrder(r.Context(), chi.URLParam(r, "id"), to, seller)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubOrder(so))
}
