package settlement

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"go.uber.org/zap"
)

var ErrNotRefundable = errors.New("sub-order earnings cannot be reversed")

// ReverseSubOrder takes a refunded sub-order's earnings back from its seller
// and marks the payout reversed. Only credited sub-orders that are disputed
// or cancelled qualify. Repeating the call after a partial failure finishes
// the status change without debiting twice.
func (w *Worker) ReverseSubOrder(ctx context.Context, subOrderID, reason, actor string) (model.SellerBalance, error) {
	so, err := w.Orders.SubOrder(ctx, subOrderID)
	if err != nil {
		return model.SellerBalance{}, err
	}
	switch {
	case so.Status != model.SubOrderDisputed && so.Status != model.SubOrderCancelled:
		return model.SellerBalance{}, apperr.Wrap(apperr.KindConflict, ErrNotRefundable,
			"Sub-order %s is %s; only disputed or cancelled sub-orders can be reversed", so.ID, so.Status)
	case so.PayoutStatus != model.PayoutCredited:
		return model.SellerBalance{}, apperr.Wrap(apperr.KindConflict, ErrNotRefundable,
			"Sub-order %s payout is %s", so.ID, so.PayoutStatus)
	}

	bal, err := w.Ledger.Reverse(ctx, so.SellerID, so.Total, so.ID, reason, actor)
	if errors.Is(err, ledger.ErrAlreadyReversed) {
		bal, err = w.Ledger.Balance(ctx, so.SellerID)
	}
	if err != nil {
		return model.SellerBalance{}, err
	}
	if _, err := w.Orders.MarkPayout(ctx, so.ID, model.PayoutCredited, model.PayoutReversed); err != nil {
		return model.SellerBalance{}, err
	}
	w.Log.Info("sub-order earnings reversed",
		zap.String("sub_order_id", so.ID),
		zap.String("seller_id", so.SellerID),
		zap.Stringer("amount", so.Total),
		zap.String("actor_id", actor))
	return bal, nil
}
