package settlement

import (
	"context"
	"go.uber.org/zap"
	"time"
)

const sweepBatch = 100

// Sweep credits delivered sub-orders that are still unsettled and were last
// touched at or before cutoff. It covers fulfilment events that never reached
// the consumer. It returns how many sub-orders it settled.
func (w *Worker) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	subs, err := w.Orders.Unsettled(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, so := range subs {
		log := w.Log.With(zap.String("sub_order_id", so.ID), zap.String("source", "sweep"))
		if err := w.credit(ctx, log, so.ID, so.SellerID, so.Total); err != nil {
			log.Warn("sweep credit failed", zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		w.Log.Info("swept unsettled sub-orders", zap.Int("settled", n), zap.Int("found", len(subs)))
	}
	return n, nil
}

// RunSweeper sweeps every interval until ctx is done. grace keeps it off
// sub-orders whose event is most likely still in flight. A non-positive
// interval disables the sweeper.
func (w *Worker) RunSweeper(ctx context.Context, interval, grace time.Duration) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Sweep(ctx, time.Now().Add(-grace)); err != nil && ctx.Err() == nil {
				w.Log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
