package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line is one product variant in a customer's cart. Price is the unit price
// captured when the line was added.
type Line struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	Weight     string
	Quantity   int
	Price      decimal.Decimal

	// Populated by reads that join the catalog.
	ProductName  string
	ProductImage string
}

// Total returns price × quantity.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the read model of a customer's cart.
type Cart struct {
	Items []Line
	Total decimal.Decimal
	Count int
}

// Summarize builds a Cart from its lines. Count is the number of lines.
func Summarize(lines []Line) *Cart {
	if lines == nil {
		lines = []Line{}
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return &Cart{
		Items: lines,
		Total: total,
		Count: len(lines),
	}
}

// Repository defines persistence operations for cart lines.
//
// Mutations for one customer are serialized with order placement for the
// same customer. UpdateQuantity and Remove return apperr.NotFound when no
// line matches.
type Repository interface {
	Lines(ctx context.Context, customerID int64) ([]Line, error)
	// Upsert inserts l or, when a line with the same customer, product and
	// weight exists, adds l.Quantity to it. merged reports the latter.
	Upsert(ctx context.Context, l Line) (id int64, merged bool, err error)
	UpdateQuantity(ctx context.Context, customerID, productID int64, quantity int) error
	Remove(ctx context.Context, customerID, productID int64) error
}
