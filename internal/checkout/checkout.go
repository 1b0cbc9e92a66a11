// Package checkout turns a cart into a persisted order: items, per-seller
// sub-orders with prorated discount, coupon consumption and stock decrement,
// all inside one transaction.
package checkout

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/coupon"
	"github.com/ariefcatur/go-seller-settlement/internal/events"
	"github.com/ariefcatur/go-seller-settlement/internal/metrics"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/notify"
	"github.com/ariefcatur/go-seller-settlement/internal/sequencer"
	"github.com/ariefcatur/go-seller-settlement/internal/stock"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

var (
	ErrSellerMissing   = errors.New("product has no seller")
	ErrNumberCollision = errors.New("order number collision")
)

type Config struct {
	TaxRateBps   int64
	ShippingCost money.Cents // charged per sub-order
	Timeout      time.Duration
	Producer     string
}

type Line struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Request struct {
	BuyerID         string
	Items           []Line
	ShippingAddress model.Address
	CouponCode      string
}

type Result struct {
	model.OrderView
	// DegradedNumber is set when the order number came from the fallback path.
	DegradedNumber bool
}

type Service struct {
	store    store.Store
	seq      *sequencer.Sequencer
	coupons  *coupon.Engine
	stock    *stock.Ledger
	notifier notify.Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config

	now   func() time.Time
	newID func() string
}

func NewService(st store.Store, seq *sequencer.Sequencer, coupons *coupon.Engine, stk *stock.Ledger,
	n notify.Notifier, log *zap.Logger, m *metrics.Metrics, cfg Config) *Service {
	return &Service{
		store:    st,
		seq:      seq,
		coupons:  coupons,
		stock:    stk,
		notifier: n,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateOrder settles req. The caller either gets the complete order or an
// error and no trace of the attempt in the store.
func (s *Service) CreateOrder(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.createOrder(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	s.metrics.Checkout(outcome, time.Since(start))
	return res, err
}

func (s *Service) createOrder(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	placedAt := s.now().UTC()
	num := s.seq.Next(ctx, placedAt)
	view, err := s.settle(ctx, req, num.Value, placedAt)
	if errors.Is(err, store.ErrDuplicate) {
		// only the fallback path can realistically collide; one more number, one more try
		s.log.Warn("order number taken, retrying settlement",
			zap.String("order_number", num.Value), zap.Bool("degraded", num.Degraded))
		num = s.seq.Next(ctx, placedAt)
		view, err = s.settle(ctx, req, num.Value, placedAt)
		if errors.Is(err, store.ErrDuplicate) {
			err = apperr.Wrap(apperr.KindConflict, ErrNumberCollision, "Could not allocate an order number, please retry")
		}
	}
	if err != nil {
		return Result{}, s.failed(req, num.Value, err)
	}

	s.log.Info("order settled",
		zap.String("order_number", view.Order.Number),
		zap.String("buyer_id", req.BuyerID),
		zap.Stringer("total", view.Order.TotalPrice),
		zap.Stringer("discount", view.Order.DiscountAmount),
		zap.Int("sellers", len(view.SubOrders)),
		zap.Bool("degraded_number", num.Degraded))
	notify.Emit(ctx, s.notifier, s.log, s.cfg.Producer, events.EventOrderCreated, view.Order.Number,
		orderCreated(view, num.Degraded))

	return Result{OrderView: view, DegradedNumber: num.Degraded}, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.BuyerID) == "" {
		return apperr.Validation("Buyer is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("Cart is empty")
	}
	if req.ShippingAddress.Missing() {
		return apperr.Validation("Shipping address is required")
	}
	for _, ln := range req.Items {
		if strings.TrimSpace(ln.ProductID) == "" {
			return apperr.Validation("Product is required for every item")
		}
		if ln.Quantity <= 0 {
			return apperr.Validation("Quantity for product %s must be positive", ln.ProductID)
		}
	}
	return nil
}

func (s *Service) failed(req Request, number string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = apperr.Wrap(apperr.KindTransient, err, "Checkout timed out")
	case errors.Is(err, context.Canceled):
		err = apperr.Wrap(apperr.KindTransient, err, "Checkout cancelled")
	}

	fields := []zap.Field{
		zap.String("order_number", number),
		zap.String("buyer_id", req.BuyerID),
		zap.String("kind", apperr.KindOf(err).String()),
		zap.Error(err),
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		s.log.Info("checkout rejected", fields...)
	default:
		s.log.Error("checkout failed", fields...)
	}
	return err
}

// group is one seller's share of the cart, in cart order.
type group struct {
	sellerID string
	subOrder string
	items    []model.OrderItem
	subtotal money.Cents
}

func (s *Service) settle(ctx context.Context, req Request, number string, at time.Time) (model.OrderView, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var view model.OrderView
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		orderID := s.newID()

		groups, overall, err := s.resolve(ctx, tx, req, orderID, at)
		if err != nil {
			return err
		}

		var red *coupon.Redemption
		if code := strings.TrimSpace(req.CouponCode); code != "" {
			r, err := s.coupons.Validate(ctx, tx, code, req.BuyerID, overall)
			if err != nil {
				return err
			}
			red = &r
		}

		o := model.Order{
			ID:              orderID,
			Number:          number,
			BuyerID:         req.BuyerID,
			ShippingAddress: req.ShippingAddress,
			Status:          model.OrderPending,
			PaymentStatus:   model.PaymentUnpaid,
			CreatedAt:       at,
			UpdatedAt:       at,
		}
		if red != nil {
			o.DiscountAmount = red.Discount
			o.CouponID = red.CouponID
			o.CouponCode = red.Code
		}
		// total is finalized once every sub-order is priced
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}

		weights := make([]money.Cents, len(groups))
		for i, g := range groups {
			weights[i] = g.subtotal
		}
		shares := money.Prorate(o.DiscountAmount, weights)

		var total money.Cents
		var items []model.OrderItem
		for i, g := range groups {
			so := s.price(g, shares[i], orderID, at)
			if err := tx.InsertSubOrder(ctx, so); err != nil {
				return err
			}
			total += so.Total
			items = append(items, g.items...)
		}
		if err := tx.InsertOrderItems(ctx, items); err != nil {
			return err
		}
		if err := tx.SetOrderTotal(ctx, orderID, total); err != nil {
			return err
		}

		if red != nil {
			if err := s.coupons.MarkUsed(ctx, tx, *red, req.BuyerID, orderID, s.newID()); err != nil {
				return err
			}
		}

		lines := make([]stock.Line, len(items))
		for i, it := range items {
			lines[i] = stock.Line{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity}
		}
		if err := s.stock.DecrementAll(ctx, tx, lines); err != nil {
			return err
		}

		view, err = tx.GetOrder(ctx, number)
		return err
	})
	return view, err
}

// resolve snapshots price and seller for every line and groups the lines by
// seller in the order sellers first appear in the cart.
func (s *Service) resolve(ctx context.Context, tx store.Tx, req Request, orderID string, at time.Time) ([]*group, money.Cents, error) {
	var groups []*group
	bySeller := map[string]*group{}
	var overall money.Cents

	for _, ln := range req.Items {
		p, err := tx.GetProduct(ctx, ln.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, apperr.Wrap(apperr.KindValidation, err, "Product %s does not exist", ln.ProductID)
		}
		if err != nil {
			return nil, 0, err
		}
		if p.SellerID == "" {
			s.log.Error("product without seller reference",
				zap.String("product_id", p.ID), zap.String("buyer_id", req.BuyerID))
			return nil, 0, apperr.Wrap(apperr.KindIntegrity, ErrSellerMissing, "product %s", p.ID)
		}
		price, ok := p.Price(ln.VariantID)
		if !ok {
			return nil, 0, apperr.Validation("Variant %s does not exist for product %s", ln.VariantID, ln.ProductID)
		}

		g, ok := bySeller[p.SellerID]
		if !ok {
			g = &group{sellerID: p.SellerID, subOrder: s.newID()}
			bySeller[p.SellerID] = g
			groups = append(groups, g)
		}
		it := model.OrderItem{
			ID:         s.newID(),
			OrderID:    orderID,
			SubOrderID: g.subOrder,
			ProductID:  p.ID,
			VariantID:  ln.VariantID,
			SellerID:   p.SellerID,
			Quantity:   ln.Quantity,
			UnitPrice:  price,
			CreatedAt:  at,
		}
		g.items = append(g.items, it)
		g.subtotal += it.LineTotal()
		overall += it.LineTotal()
	}
	return groups, overall, nil
}

func (s *Service) price(g *group, discount money.Cents, orderID string, at time.Time) model.SellerSubOrder {
	taxable := g.subtotal - discount
	tax := money.Bps(taxable, s.cfg.TaxRateBps)
	return model.SellerSubOrder{
		ID:               g.subOrder,
		OrderID:          orderID,
		SellerID:         g.sellerID,
		OriginalSubtotal: g.subtotal,
		DiscountAmount:   discount,
		Tax:              tax,
		ShippingCost:     s.cfg.ShippingCost,
		Total:            taxable + tax + s.cfg.ShippingCost,
		Status:           model.SubOrderPending,
		PayoutStatus:     model.PayoutUnsettled,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func orderCreated(v model.OrderView, degraded bool) events.OrderCreatedPayload {
	p := events.OrderCreatedPayload{
		OrderID:       v.Order.ID,
		OrderNumber:   v.Order.Number,
		BuyerID:       v.Order.BuyerID,
		TotalCents:    int64(v.Order.TotalPrice),
		DiscountCents: int64(v.Order.DiscountAmount),
		CouponCode:    v.Order.CouponCode,
		Degraded:      degraded,
	}
	for _, it := range v.Items {
		p.Items = append(p.Items, events.OrderLine{
			ProductID:  it.ProductID,
			VariantID:  it.VariantID,
			Qty:        it.Quantity,
			PriceCents: int64(it.UnitPrice),
		})
	}
	for _, so := range v.SubOrders {
		p.Sellers = append(p.Sellers, events.SellerShare{
			SubOrderID:    so.ID,
			SellerID:      so.SellerID,
			TotalCents:    int64(so.Total),
			DiscountCents: int64(so.DiscountAmount),
		})
	}
	return p
}
