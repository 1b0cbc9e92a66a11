// Package settlement consumes fulfilled sub-orders and credits seller
// earnings into the ledger.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	kafkax "github.com/ariefcatur/go-seller-settlement/internal/kafka"
	"github.com/ariefcatur/go-seller-settlement/internal/ledger"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Deduper remembers handled event IDs.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Worker struct {
	Ledger *ledger.Service
	Orders *orders.Service
	Dedup  Deduper // optional
	Log    *zap.Logger
}

// Handle is the kafka.Handler for the fulfilment topic.
func (w *Worker) Handle(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, "x-event-type"); t != "" && t != events.EventSubOrderFulfilled {
		return nil
	}
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message; retrying will not help
		w.Log.Error("undecodable fulfilment message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	return w.HandleEnvelope(ctx, env)
}

func (w *Worker) HandleEnvelope(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.EventSubOrderFulfilled {
		return nil
	}
	log := w.Log.With(zap.String("event_id", env.EventID), zap.String("correlation_id", env.CorrelationID))

	if w.Dedup != nil {
		seen, err := w.Dedup.Seen(ctx, env.EventID)
		if err != nil {
			log.Warn("dedup lookup failed, relying on ledger idempotency", zap.Error(err))
		} else if seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[events.SubOrderFulfilledPayload](env.Payload)
	if err != nil {
		log.Error("bad fulfilment payload", zap.Error(err))
		return nil
	}

	if err := w.credit(ctx, log, p.SubOrderID, p.SellerID, money.Cents(p.EarningsCents)); err != nil {
		return err
	}

	if w.Dedup != nil {
		if err := w.Dedup.Mark(ctx, env.EventID); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	return nil
}

// credit books a sub-order's earnings and flips its payout status. Both
// steps are idempotent. Permanent failures are logged and swallowed.
func (w *Worker) credit(ctx context.Context, log *zap.Logger, subOrderID, sellerID string, amount money.Cents) error {
	bal, err := w.Ledger.Credit(ctx, sellerID, amount, subOrderID)
	if err != nil {
		if permanent(err) {
			log.Error("cannot credit seller", zap.String("seller_id", sellerID),
				zap.String("sub_order_id", subOrderID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("credit seller %s for %s: %w", sellerID, subOrderID, err)
	}

	if _, err := w.Orders.MarkPayout(ctx, subOrderID, model.PayoutUnsettled, model.PayoutCredited); err != nil {
		if !permanent(err) {
			return fmt.Errorf("mark payout %s: %w", subOrderID, err)
		}
		log.Warn("payout status not updated", zap.String("sub_order_id", subOrderID), zap.Error(err))
	}

	log.Info("seller credited",
		zap.String("seller_id", sellerID),
		zap.String("sub_order_id", subOrderID),
		zap.Stringer("earnings", amount),
		zap.Stringer("withdrawable", bal.Withdrawable))
	return nil
}

func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindIntegrity:
		return true
	}
	return false
}
