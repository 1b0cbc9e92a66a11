// Package stock decrements variant inventory inside a settlement transaction.
package stock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-seller-settlement/internal/apperr"
	"github.com/ariefcatur/go-seller-settlement/internal/store"
	"sort"
)

var ErrInsufficient = errors.New("insufficient stock")

// InsufficientStockError names the line that could not be covered.
type InsufficientStockError struct {
	ProductID string
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s variant %s: requested %d, available %d",
		e.ProductID, variantLabel(e.VariantID), e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficient }

func variantLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

// Line is one quantity to take out of stock.
type Line struct {
	ProductID string
	VariantID string
	Quantity  int
}

type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// Decrement locks the stock row, checks it covers qty and subtracts it. The
// read and the write happen in tx so no concurrent order can slip between them.
func (l *Ledger) Decrement(ctx context.Context, tx store.CatalogTx, productID, variantID string, qty int) error {
	if qty <= 0 {
		return apperr.Validation("Quantity must be positive for product %s", productID)
	}
	available, err := tx.LockStock(ctx, productID, variantID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.KindValidation, err, "Product %s variant %s does not exist", productID, variantLabel(variantID))
	}
	if err != nil {
		return fmt.Errorf("lock stock %s/%s: %w", productID, variantID, err)
	}

	short := &InsufficientStockError{ProductID: productID, VariantID: variantID, Requested: qty, Available: available}
	if available < qty {
		return insufficient(short)
	}
	ok, err := tx.DecrementStock(ctx, productID, variantID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock %s/%s: %w", productID, variantID, err)
	}
	if !ok {
		return insufficient(short)
	}
	return nil
}

// DecrementAll applies every line and stops at the first failure; the caller
// rolls the transaction back. Rows are locked in (product, variant) order so
// two carts holding the same items in a different order cannot deadlock.
func (l *Ledger) DecrementAll(ctx context.Context, tx store.CatalogTx, lines []Line) error {
	ordered := append([]Line(nil), lines...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return ordered[i].ProductID < ordered[j].ProductID
		}
		return ordered[i].VariantID < ordered[j].VariantID
	})
	for _, ln := range ordered {
		if err := l.Decrement(ctx, tx, ln.ProductID, ln.VariantID, ln.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func insufficient(e *InsufficientStockError) error {
	return apperr.Wrap(apperr.KindConflict, e, "Insufficient stock for product %s variant %s", e.ProductID, variantLabel(e.VariantID))
}
