package model

import "github.com/ariefcatur/go-seller-settlement/internal/money"

// Product is the read-only catalog view the settlement needs. Products
// without variants carry price and stock on the product itself.
type Product struct {
	ID         string
	SellerID   string
	Name       string
	PriceCents money.Cents
	Stock      int
	Variants   []Variant
}

type Variant struct {
	ID         string
	ProductID  string
	PriceCents money.Cents
	Stock      int
}

// Price resolves the unit price for variantID ("" means the product itself).
func (p Product) Price(variantID string) (money.Cents, bool) {
	if variantID == "" {
		return p.PriceCents, true
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v.PriceCents, true
		}
	}
	return 0, false
}
