package pgstore

import (
	"context"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
)

func (t *pgTx) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	var p model.Product
	var seller *string
	err := t.tx.QueryRow(ctx, `SELECT id, seller_id, name, price_cents, stock FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &seller, &p.Name, &p.PriceCents, &p.Stock)
	if err != nil {
		return model.Product{}, notFound(err)
	}
	if seller != nil {
		p.SellerID = *seller
	}

	rows, err := t.tx.Query(ctx, `SELECT id, price_cents, stock FROM product_variants WHERE product_id=$1 ORDER BY id`, productID)
	if err != nil {
		return model.Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		v := model.Variant{ProductID: productID}
		if err := rows.Scan(&v.ID, &v.PriceCents, &v.Stock); err != nil {
			return model.Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

func (t *pgTx) LockStock(ctx context.Context, productID, variantID string) (int, error) {
	var stock int
	var err error
	if variantID == "" {
		err = t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	} else {
		err = t.tx.QueryRow(ctx, `SELECT stock FROM product_variants WHERE product_id=$1 AND id=$2 FOR UPDATE`,
			productID, variantID).Scan(&stock)
	}
	return stock, notFound(err)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID, variantID string, qty int) (bool, error) {
	var q string
	args := []any{productID, qty}
	if variantID == "" {
		q = `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`
	} else {
		q = `UPDATE product_variants SET stock = stock - $2 WHERE product_id=$1 AND id=$3 AND stock >= $2`
		args = append(args, variantID)
	}
	ct, err := t.tx.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
