package httpx

import (
	"github.com/ariefcatur/go-seller-settlement/internal/credit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
)

type CreditHandler struct {
	Credit *credit.Service
	Log    *zap.Logger
}

func (h *CreditHandler) Register(r chi.Router) {
	r.Route("/credits", func(r chi.Router) {
		r.Use(RequireRole(RoleBuyer))
		r.Get("/", h.get)
		r.Post("/redeem", h.redeem)
	})
}

type redeemReq struct {
	Code string `json:"code"`
}

type redeemResp struct {
	BalanceCents int64         `json:"balance_cents"`
	Transaction  creditTxnResp `json:"transaction"`
}

func (h *CreditHandler) redeem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req redeemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	bal, t, err := h.Credit.RedeemCoupon(r.Context(), id.Subject, req.Code)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResp{BalanceCents: int64(bal), Transaction: toCreditTxn(t)})
}

func (h *CreditHandler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	b, err := h.Credit.Get(r.Context(), id.Subject)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	out := creditResp{
		BuyerID:      id.Subject,
		BalanceCents: int64(b.Balance),
		Transactions: make([]creditTxnResp, 0, len(b.Transactions)),
	}
	for _, t := range b.Transactions {
		out.Transactions = append(out.Transactions, toCreditTxn(t))
	}
	writeJSON(w, http.StatusOK, out)
}
