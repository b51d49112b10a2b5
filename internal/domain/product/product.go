package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item. Prices live on its weight variants.
type Product struct {
	ID          int64
	Name        string
	Description string
	Image       string
	Variants    []Variant
}

// Variant is a purchasable weight of a product, e.g. "250g" at 6.90.
type Variant struct {
	Weight string
	Price  decimal.Decimal
}

// Repository defines read operations for the product catalog.
//
// GetByID returns an apperr.NotFound error for an unknown id.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	Variants(ctx context.Context, productID int64) ([]Variant, error)
	// BestSellers returns up to limit products, each with the single
	// variant it is featured with.
	BestSellers(ctx context.Context, limit int) ([]Product, error)
}
