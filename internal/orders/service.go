// Package orders runs the post-checkout lifecycle of sub-orders and reports
// fulfilled ones so sellers get credited.
package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"go.uber.org/zap"
	"time"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrSubOrderNotFound  = errors.New("sub-order not found")
	ErrInvalidTransition = errors.New("invalid sub-order transition")
)

// ViewCache is a read-through cache of joined order views.
type ViewCache interface {
	Get(ctx context.Context, number string) (model.OrderView, bool, error)
	Put(ctx context.Context, v model.OrderView) error
	Invalidate(ctx context.Context, number string) error
}

type Service struct {
	store    store.Store
	cache    ViewCache
	notifier notify.Notifier
	log      *zap.Logger
	producer string
	now      func() time.Time
}

// NewService builds the lifecycle service; cache may be nil.
func NewService(st store.Store, cache ViewCache, n notify.Notifier, log *zap.Logger, producer string) *Service {
	return &Service{store: st, cache: cache, notifier: n, log: log, producer: producer, now: time.Now}
}

// Get returns the order joined with its items and sub-orders.
func (s *Service) Get(ctx context.Context, number string) (model.OrderView, error) {
	if s.cache != nil {
		v, ok, err := s.cache.Get(ctx, number)
		if err != nil {
			s.log.Warn("order cache read failed", zap.String("order_number", number), zap.Error(err))
		} else if ok {
			return v, nil
		}
	}

	var v model.OrderView
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		v, err = tx.GetOrder(ctx, number)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return v, apperr.Wrap(apperr.KindNotFound, ErrOrderNotFound, "Order %s not found", number)
	}
	if err != nil {
		return v, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, v); err != nil {
			s.log.Warn("order cache write failed", zap.String("order_number", number), zap.Error(err))
		}
	}
	return v, nil
}

// TransitionSubOrder moves a sub-order to status to. sellerID restricts the
// change to that seller's own sub-order; admins pass "". Reaching delivered
// announces the seller's earnings for settlement.
func (s *Service) TransitionSubOrder(ctx context.Context, subOrderID string, to model.SubOrderStatus, sellerID string) (model.SellerSubOrder, error) {
	var (
		so     model.SellerSubOrder
		number string
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		so, err = tx.GetSubOrder(ctx, subOrderID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && sellerID != "" && so.SellerID != sellerID) {
			return apperr.Wrap(apperr.KindNotFound, ErrSubOrderNotFound, "Sub-order %s not found", subOrderID)
		}
		if err != nil {
			return err
		}
		if !CanTransition(so.Status, to) {
			return apperr.Wrap(apperr.KindValidation, ErrInvalidTransition, "Cannot move sub-order from %s to %s", so.Status, to)
		}

		at := s.now().UTC()
		ok, err := tx.TransitionSubOrder(ctx, subOrderID, so.Status, to, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.KindConflict, ErrInvalidTransition, "Sub-order %s changed concurrently", subOrderID)
		}
		so.Status, so.UpdatedAt = to, at

		subs, err := tx.ListSubOrders(ctx, so.OrderID)
		if err != nil {
			return err
		}
		number, err = tx.GetOrderNumber(ctx, so.OrderID)
		if err != nil {
			return err
		}
		v, err := tx.GetOrder(ctx, number)
		if err != nil {
			return err
		}
		if next := rollUp(v.Order.Status, subs); next != v.Order.Status {
			return tx.SetOrderStatus(ctx, so.OrderID, next, at)
		}
		return nil
	})
	if err != nil {
		return model.SellerSubOrder{}, err
	}

	s.invalidate(ctx, number)
	s.log.Info("sub-order transitioned",
		zap.String("order_number", number), zap.String("sub_order_id", subOrderID), zap.String("status", string(to)))
	if to == model.SubOrderDelivered {
		notify.Emit(ctx, s.notifier, s.log, s.producer, events.EventSubOrderFulfilled, so.ID,
			events.SubOrderFulfilledPayload{
				OrderID:       so.OrderID,
				SubOrderID:    so.ID,
				SellerID:      so.SellerID,
				EarningsCents: int64(so.Total),
			})
	}
	return so, nil
}

// MarkPayout moves the payout status of a sub-order. It reports false when
// the sub-order already left from, which callers treat as already done.
func (s *Service) MarkPayout(ctx context.Context, subOrderID string, from, to model.PayoutStatus) (bool, error) {
	var (
		moved  bool
		number string
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		so, err := tx.GetSubOrder(ctx, subOrderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.KindNotFound, ErrSubOrderNotFound, "Sub-order %s not found", subOrderID)
		}
		if err != nil {
			return err
		}
		if moved, err = tx.TransitionPayout(ctx, subOrderID, from, to, s.now().UTC()); err != nil {
			return err
		}
		number, err = tx.GetOrderNumber(ctx, so.OrderID)
		return err
	})
	if err != nil {
		return false, err
	}
	if moved {
		s.invalidate(ctx, number)
	}
	return moved, nil
}

// Unsettled lists delivered sub-orders whose earnings were never credited.
func (s *Service) Unsettled(ctx context.Context, before time.Time, limit int) ([]model.SellerSubOrder, error) {
	var out []model.SellerSubOrder
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListUnsettledDelivered(ctx, before, limit)
		return err
	})
	return out, err
}

// SubOrder returns one sub-order by id.
func (s *Service) SubOrder(ctx context.Context, subOrderID string) (model.SellerSubOrder, error) {
	var so model.SellerSubOrder
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		so, err = tx.GetSubOrder(ctx, subOrderID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return so, apperr.Wrap(apperr.KindNotFound, ErrSubOrderNotFound, "Sub-order %s not found", subOrderID)
	}
	return so, err
}

func (s *Service) invalidate(ctx context.Context, number string) {
	if s.cache == nil || number == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, number); err != nil {
		s.log.Warn("order cache invalidate failed", zap.String("order_number", number), zap.Error(err))
	}
}
