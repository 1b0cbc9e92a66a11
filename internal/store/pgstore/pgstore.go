// Package pgstore implements store.Store on PostgreSQL with pgx.
package pgstore

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "commit transaction")
	}
	return nil
}

// classify marks lock and serialization failures as transient so callers
// retry them instead of reporting an internal error.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch pgErr.Code {
	case "40P01", "40001", "55P03": // deadlock, serialization failure, lock not available
		return apperr.Wrap(apperr.KindTransient, err, "Please retry, the request conflicted with a concurrent update")
	}
	return err
}

// Increment is an upsert so the first caller of the day creates the row and
// every caller gets a distinct value.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO counters(key, seq) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1, updated_at = now()
		RETURNING seq`, key).Scan(&seq)
	return seq, err
}

type pgTx struct{ tx pgx.Tx }

var _ store.Store = (*Store)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
