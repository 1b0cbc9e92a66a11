package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/model"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/jackc/pgx/v5"
	"time"
)

func (t *pgTx) GetSellerBalance(ctx context.Context, sellerID string) (model.SellerBalance, error) {
	b := model.SellerBalance{SellerID: sellerID}
	err := t.tx.QueryRow(ctx, `
		SELECT balance_cents, locked_cents, pending_cents, withdrawable_cents, version, updated_at
		FROM seller_balances WHERE seller_id=$1`, sellerID).
		Scan(&b.Balance, &b.Locked, &b.Pending, &b.Withdrawable, &b.Version, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	return b, err
}

func (t *pgTx) SaveSellerBalance(ctx context.Context, b model.SellerBalance, expectedVersion int64) (bool, error) {
	if expectedVersion == 0 {
		ct, err := t.tx.Exec(ctx, `
			INSERT INTO seller_balances(seller_id, balance_cents, locked_cents, pending_cents, withdrawable_cents, version, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (seller_id) DO NOTHING`,
			b.SellerID, b.Balance, b.Locked, b.Pending, b.Withdrawable, b.Version, b.UpdatedAt)
		if err != nil {
			return false, err
		}
		return ct.RowsAffected() == 1, nil
	}
	ct, err := t.tx.Exec(ctx, `
		UPDATE seller_balances
		SET balance_cents=$2, locked_cents=$3, pending_cents=$4, withdrawable_cents=$5, version=$6, updated_at=$7
		WHERE seller_id=$1 AND version=$8`,
		b.SellerID, b.Balance, b.Locked, b.Pending, b.Withdrawable, b.Version, b.UpdatedAt, expectedVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO seller_ledger_entries(id, seller_id, op, amount_cents, reference, reason, actor_id,
		                                  balance_cents, locked_cents, pending_cents, withdrawable_cents, version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.SellerID, e.Op, e.Amount, e.Reference, e.Reason, e.ActorID,
		e.After.Balance, e.After.Locked, e.After.Pending, e.After.Withdrawable, e.After.Version, e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("ledger entry %s/%s/%s: %w", e.SellerID, e.Op, e.Reference, store.ErrDuplicate)
	}
	return err
}

func (t *pgTx) ListLedgerEntries(ctx context.Context, sellerID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, seller_id, op, amount_cents, reference, reason, actor_id,
		       balance_cents, locked_cents, pending_cents, withdrawable_cents, version, created_at
		FROM seller_ledger_entries WHERE seller_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, sellerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.SellerID, &e.Op, &e.Amount, &e.Reference, &e.Reason, &e.ActorID,
			&e.After.Balance, &e.After.Locked, &e.After.Pending, &e.After.Withdrawable, &e.After.Version,
			&e.CreatedAt); err != nil {
			return nil, err
		}
		e.After.SellerID = e.SellerID
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) GetPaymentMethod(ctx context.Context, sellerID string, kind model.PaymentMethodKind) (model.PaymentMethod, error) {
	var raw []byte
	err := t.tx.QueryRow(ctx, `SELECT details FROM seller_payment_methods WHERE seller_id=$1 AND kind=$2 FOR UPDATE`,
		sellerID, kind).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	return model.DecodePaymentMethod(kind, raw)
}

func (t *pgTx) SavePaymentMethod(ctx context.Context, sellerID string, m model.PaymentMethod, at time.Time) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO seller_payment_methods(seller_id, kind, details, status, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (seller_id, kind) DO UPDATE SET details=EXCLUDED.details, status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
		sellerID, m.Kind(), raw, m.Verification().Status, at)
	return err
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w model.Withdrawal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO withdrawals(id, seller_id, amount_cents, method, status, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		w.ID, w.SellerID, w.Amount, w.Method, w.Status, w.RequestedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (t *pgTx) GetWithdrawal(ctx context.Context, id string) (model.Withdrawal, error) {
	var w model.Withdrawal
	err := t.tx.QueryRow(ctx, `
		SELECT id, seller_id, amount_cents, method, status, requested_at, processed_at, processed_by, note
		FROM withdrawals WHERE id=$1`, id).
		Scan(&w.ID, &w.SellerID, &w.Amount, &w.Method, &w.Status, &w.RequestedAt, &w.ProcessedAt, &w.ProcessedBy, &w.Note)
	return w, notFound(err)
}

func (t *pgTx) TransitionWithdrawal(ctx context.Context, id string, from, to model.WithdrawalStatus, actor, note string, at time.Time) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE withdrawals SET status=$3, processed_by=$4, note=$5, processed_at=$6
		WHERE id=$1 AND status=$2`, id, from, to, actor, note, at)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
