package pgstore

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/money"
	"github.com/jackc/pgx/v5"
)

func (t *pgTx) AddBuyerCredit(ctx context.Context, ct model.CreditTransaction) (money.Cents, error) {
	var bal money.Cents
	err := t.tx.QueryRow(ctx, `
		INSERT INTO buyer_credit_balances(buyer_id, balance_cents, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (buyer_id) DO UPDATE
		SET balance_cents = buyer_credit_balances.balance_cents + EXCLUDED.balance_cents, updated_at = EXCLUDED.updated_at
		RETURNING balance_cents`, ct.BuyerID, ct.Amount, ct.CreatedAt).Scan(&bal)
	if err != nil {
		return 0, err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO buyer_credit_transactions(id, buyer_id, amount_cents, type, description, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ct.ID, ct.BuyerID, ct.Amount, ct.Type, ct.Description, ct.Reference, ct.CreatedAt)
	return bal, err
}

func (t *pgTx) GetBuyerCredit(ctx context.Context, buyerID string) (model.BuyerCreditBalance, error) {
	out := model.BuyerCreditBalance{BuyerID: buyerID}
	err := t.tx.QueryRow(ctx, `SELECT balance_cents FROM buyer_credit_balances WHERE buyer_id=$1`, buyerID).Scan(&out.Balance)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, err
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, buyer_id, amount_cents, type, description, reference, created_at
		FROM buyer_credit_transactions WHERE buyer_id=$1 ORDER BY created_at, id`, buyerID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var ct model.CreditTransaction
		if err := rows.Scan(&ct.ID, &ct.BuyerID, &ct.Amount, &ct.Type, &ct.Description, &ct.Reference, &ct.CreatedAt); err != nil {
			return out, err
		}
		out.Transactions = append(out.Transactions, ct)
	}
	return out, rows.Err()
}
