package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/jackc/pgx/v5"
	"time"
)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *pgTx) InsertOrder(ctx context.Context, o model.Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, buyer_id, shipping_address, total_cents, discount_cents,
		                   coupon_id, coupon_code, status, payment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.Number, o.BuyerID, addr, o.TotalPrice, o.DiscountAmount,
		nullable(o.CouponID), nullable(o.CouponCode), o.Status, o.PaymentStatus, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("order number %s: %w", o.Number, store.ErrDuplicate)
	}
	return err
}

func (t *pgTx) InsertSubOrder(ctx context.Context, so model.SellerSubOrder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO seller_sub_orders(id, order_id, seller_id, original_subtotal, discount_cents, tax_cents,
		                              shipping_cents, total_cents, status, payout_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		so.ID, so.OrderID, so.SellerID, so.OriginalSubtotal, so.DiscountAmount, so.Tax,
		so.ShippingCost, so.Total, so.Status, so.PayoutStatus, so.CreatedAt, so.UpdatedAt)
	return err
}

func (t *pgTx) InsertOrderItems(ctx context.Context, items []model.OrderItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO order_items(id, order_id, sub_order_id, product_id, variant_id, seller_id, qty, price_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, it.OrderID, it.SubOrderID, it.ProductID, it.VariantID, it.SellerID, it.Quantity, it.UnitPrice, it.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) SetOrderTotal(ctx context.Context, orderID string, total money.Cents) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET total_cents=$2 WHERE id=$1`, orderID, total)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, orderID, status, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetOrder(ctx context.Context, number string) (model.OrderView, error) {
	var v model.OrderView
	var addr []byte
	var couponID, couponCode *string
	o := &v.Order
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_number, buyer_id, shipping_address, total_cents, discount_cents, coupon_id, coupon_code,
		       status, payment_status, created_at, updated_at
		FROM orders WHERE order_number=$1`, number).
		Scan(&o.ID, &o.Number, &o.BuyerID, &addr, &o.TotalPrice, &o.DiscountAmount, &couponID, &couponCode,
			&o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.OrderView{}, notFound(err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return model.OrderView{}, err
	}
	if couponID != nil {
		o.CouponID = *couponID
	}
	if couponCode != nil {
		o.CouponCode = *couponCode
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, sub_order_id, product_id, variant_id, seller_id, qty, price_cents, created_at
		FROM order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return model.OrderView{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SubOrderID, &it.ProductID, &it.VariantID, &it.SellerID,
			&it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return model.OrderView{}, err
		}
		v.Items = append(v.Items, it)
		o.ItemIDs = append(o.ItemIDs, it.ID)
	}
	if err := rows.Err(); err != nil {
		return model.OrderView{}, err
	}

	subs, err := t.ListSubOrders(ctx, o.ID)
	if err != nil {
		return model.OrderView{}, err
	}
	v.SubOrders = subs
	for _, so := range subs {
		o.SubOrderIDs = append(o.SubOrderIDs, so.ID)
	}
	return v, nil
}

func (t *pgTx) GetOrderNumber(ctx context.Context, orderID string) (string, error) {
	var n string
	err := t.tx.QueryRow(ctx, `SELECT order_number FROM orders WHERE id=$1`, orderID).Scan(&n)
	return n, notFound(err)
}

const subOrderCols = `so.id, so.order_id, so.seller_id, so.original_subtotal, so.discount_cents, so.tax_cents,
	so.shipping_cents, so.total_cents, so.status, so.payout_status, so.created_at, so.updated_at,
	COALESCE((SELECT array_agg(i.id ORDER BY i.id) FROM order_items i WHERE i.sub_order_id = so.id), '{}')`

func scanSubOrder(row pgx.Row) (model.SellerSubOrder, error) {
	var so model.SellerSubOrder
	err := row.Scan(&so.ID, &so.OrderID, &so.SellerID, &so.OriginalSubtotal, &so.DiscountAmount, &so.Tax,
		&so.ShippingCost, &so.Total, &so.Status, &so.PayoutStatus, &so.CreatedAt, &so.UpdatedAt, &so.ItemIDs)
	return so, err
}

func (t *pgTx) GetSubOrder(ctx context.Context, subOrderID string) (model.SellerSubOrder, error) {
	so, err := scanSubOrder(t.tx.QueryRow(ctx, `SELECT `+subOrderCols+` FROM seller_sub_orders so WHERE so.id=$1`, subOrderID))
	return so, notFound(err)
}

func (t *pgTx) ListSubOrders(ctx context.Context, orderID string) ([]model.SellerSubOrder, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+subOrderCols+` FROM seller_sub_orders so WHERE so.order_id=$1 ORDER BY so.seller_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SellerSubOrder
	for rows.Next() {
		so, err := scanSubOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func (t *pgTx) TransitionSubOrder(ctx context.Context, subOrderID string, from, to model.SubOrderStatus, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `UPDATE seller_sub_orders SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`,
		subOrderID, from, to, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) TransitionPayout(ctx context.Context, subOrderID string, from, to model.PayoutStatus, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `UPDATE seller_sub_orders SET payout_status=$3, updated_at=$4 WHERE id=$1 AND payout_status=$2`,
		subOrderID, from, to, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) ListUnsettledDelivered(ctx context.Context, before time.Time, limit int) ([]model.SellerSubOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `SELECT `+subOrderCols+` FROM seller_sub_orders so
		WHERE so.status=$1 AND so.payout_status=$2 AND so.updated_at <= $3
		ORDER BY so.updated_at, so.id LIMIT $4`,
		model.SubOrderDelivered, model.PayoutUnsettled, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SellerSubOrder
	for rows.Next() {
		so, err := scanSubOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}
