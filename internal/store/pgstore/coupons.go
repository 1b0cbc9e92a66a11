package pgstore

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"time"
)

func (t *pgTx) FindCoupon(ctx context.Context, code string) (model.CouponBatch, model.Coupon, error) {
	var b model.CouponBatch
	var c model.Coupon
	var recipient, usedBy *string
	err := t.tx.QueryRow(ctx, `
		SELECT b.id, b.seller_id, b.name, b.discount_type, b.discount_value, b.valid_from, b.expires_at,
		       b.max_usage, b.min_order_cents, b.is_active, b.usage_count,
		       c.id, c.code, c.recipient_id, c.used, c.used_at, c.used_by, c.usage_count
		FROM coupons c JOIN coupon_batches b ON b.id = c.batch_id
		WHERE c.code=$1`, code).
		Scan(&b.ID, &b.SellerID, &b.Name, &b.DiscountType, &b.DiscountValue, &b.ValidFrom, &b.ExpiresAt,
			&b.MaxUsage, &b.MinOrderAmount, &b.IsActive, &b.UsageCount,
			&c.ID, &c.Code, &recipient, &c.Used, &c.UsedAt, &usedBy, &c.UsageCount)
	if err != nil {
		return model.CouponBatch{}, model.Coupon{}, notFound(err)
	}
	c.BatchID = b.ID
	if recipient != nil {
		c.RecipientID = *recipient
	}
	if usedBy != nil {
		c.UsedBy = *usedBy
	}
	return b, c, nil
}

// ConsumeCoupon relies on the row lock taken by UPDATE: a concurrent
// transaction re-evaluates the WHERE clause after the first one commits and
// matches nothing.
func (t *pgTx) ConsumeCoupon(ctx context.Context, batchID, couponID, buyerID string, maxUsage int, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1,
		    used = (usage_count + 1 >= $4),
		    used_at = $5,
		    used_by = $3
		WHERE id=$1 AND batch_id=$2 AND used = false AND usage_count < $4`,
		couponID, batchID, buyerID, maxUsage, at)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, `UPDATE coupon_batches SET usage_count = usage_count + 1 WHERE id=$1`, batchID)
	return err == nil, err
}

func (t *pgTx) InsertCouponUsage(ctx context.Context, u model.CouponUsage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO coupon_usages(id, batch_id, coupon_id, buyer_id, order_id, discount_cents, used_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.BatchID, u.CouponID, u.BuyerID, nullable(u.OrderID), u.Discount, u.UsedAt)
	return err
}
