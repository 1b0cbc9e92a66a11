package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Refunds takes a refunded sub-order's earnings back from its seller.
type Refunds interface {
	ReverseSubOrder(ctx context.Context, subOrderID, reason, actor string) (model.SellerBalance, error)
}

type LedgerHandler struct {
	Ledger  *ledger.Service
	Refunds Refunds // optional
	Log     *zap.Logger
}

// Register mounts the seller self-service routes and the admin routes.
func (h *LedgerHandler) Register(r chi.Router) {
	r.Route("/sellers/me", func(r chi.Router) {
		r.Use(RequireRole(RoleSeller))
		r.Get("/balance", h.balance)
		r.Get("/ledger", h.entries)
		r.Post("/withdrawals", h.requestWithdrawal)
		r.Delete("/withdrawals/{id}", h.cancelWithdrawal)
		r.Get("/payout-methods/{kind}", h.getMethod)
		r.Put("/payout-methods/{kind}", h.putMethod)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(RoleAdmin))
		r.Get("/sellers/{id}/balance", h.adminBalance)
		r.Post("/sellers/{id}/lock", h.lock)
		r.Post("/sellers/{id}/unlock", h.unlock)
		r.Post("/sellers/{id}/payout-methods/{kind}/verify", h.verifyMethod)
		r.Post("/sellers/{id}/payout-methods/{kind}/reset", h.resetMethod)
		r.Get("/withdrawals/{id}", h.getWithdrawal)
		if h.Refunds != nil {
			r.Post("/suborders/{id}/reverse", h.reverseSubOrder)
		}
		r.Post("/withdrawals/{id}/settle", h.settle)
	})
}

type entryResp struct {
	ID          string    `json:"id"`
	Op          string    `json:"op"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *LedgerHandler) balance(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	b, err := h.Ledger.Balance(r.Context(), id.Subject)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(b))
}

func (h *LedgerHandler) adminBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Ledger.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(b))
}

func (h *LedgerHandler) entries(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, r, h.Log, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	es, err := h.Ledger.Entries(r.Context(), id.Subject, limit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out := make([]entryResp, 0, len(es))
	for _, e := range es {
		out = append(out, entryResp{
			ID:          e.ID,
			Op:          string(e.Op),
			AmountCents: int64(e.Amount),
			Reference:   e.Reference,
			Reason:      e.Reason,
			ActorID:     e.ActorID,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type withdrawalReq struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

func (h *LedgerHandler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req withdrawalReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	kind, ok := model.ParsePaymentMethodKind(req.Method)
	if !ok {
		writeError(w, r, h.Log, apperr.Validation("Unknown payout method %q", req.Method))
		return
	}
	wd, b, err := h.Ledger.ReserveForWithdrawal(r.Context(), id.Subject, money.Cents(req.AmountCents), kind)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawalWithBalance{Withdrawal: toWithdrawal(wd), Balance: toBalance(b)})
}

func (h *LedgerHandler) cancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	wd, b, err := h.Ledger.CancelWithdrawal(r.Context(), id.Subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawalWithBalance{Withdrawal: toWithdrawal(wd), Balance: toBalance(b)})
}

type settleReq struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note,omitempty"`
}

func (h *LedgerHandler) settle(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req settleReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	outcome, ok := ledger.ParseOutcome(req.Outcome)
	if !ok {
		writeError(w, r, h.Log, apperr.Validation("outcome must be approve or reject"))
		return
	}
	wd, b, err := h.Ledger.SettleWithdrawal(r.Context(), chi.URLParam(r, "id"), outcome, id.Subject, req.Note)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawalWithBalance{Withdrawal: toWithdrawal(wd), Balance: toBalance(b)})
}

type lockReq struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func (h *LedgerHandler) lock(w http.ResponseWriter, r *http.Request) {
	h.lockOrUnlock(w, r, h.Ledger.Lock)
}

func (h *LedgerHandler) unlock(w http.ResponseWriter, r *http.Request) {
	h.lockOrUnlock(w, r, h.Ledger.Unlock)
}

type lockFunc func(ctx context.Context, sellerID string, amount money.Cents, reason, adminID string) (model.SellerBalance, error)

func (h *LedgerHandler) lockOrUnlock(w http.ResponseWriter, r *http.Request, fn lockFunc) {
	id, _ := IdentityFrom(r.Context())
	var req lockReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	b, err := fn(r.Context(), chi.URLParam(r, "id"), money.Cents(req.AmountCents), req.Reason, id.Subject)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(b))
}

func pathKind(r *http.Request) (model.PaymentMethodKind, error) {
	s := chi.URLParam(r, "kind")
	kind, ok := model.ParsePaymentMethodKind(s)
	if !ok {
		return "", apperr.Validation("Unknown payout method %q", s)
	}
	return kind, nil
}

func (h *LedgerHandler) getMethod(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	m, err := h.Ledger.PaymentMethod(r.Context(), id.Subject, kind)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentMethodResp{Kind: string(kind), Details: m})
}

func (h *LedgerHandler) putMethod(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var raw json.RawMessage
	if err := decode(r, &raw); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	m, err := model.DecodePaymentMethod(kind, raw)
	if err != nil {
		writeError(w, r, h.Log, apperr.Wrap(apperr.KindValidation, err, "invalid payout details"))
		return
	}
	// verification is never taken from the caller
	m = m.WithVerification(model.Verification{})
	saved, err := h.Ledger.UpdatePaymentMethod(r.Context(), id.Subject, m)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentMethodResp{Kind: string(kind), Details: saved})
}

type verifyReq struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

func (h *LedgerHandler) verifyMethod(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req verifyReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	m, err := h.Ledger.VerifyPaymentMethod(r.Context(), chi.URLParam(r, "id"), kind, id.Subject, req.Approve, req.Reason)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentMethodResp{Kind: string(kind), Details: m})
}

// resetMethod is called when payout details changed in another system.
func (h *LedgerHandler) resetMethod(w http.ResponseWriter, r *http.Request) {
	kind, err := pathKind(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	reset, err := h.Ledger.OnPayoutDetailsChanged(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func (h *LedgerHandler) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	wd, err := h.Ledger.Withdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawal(wd))
}

type reverseReq struct {
	Reason string `json:"reason"`
}

func (h *LedgerHandler) reverseSubOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req reverseReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, r, h.Log, apperr.Validation("Reversal reason is required"))
		return
	}
	b, err := h.Refunds.ReverseSubOrder(r.Context(), chi.URLParam(r, "id"), req.Reason, id.Subject)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalance(b))
}
