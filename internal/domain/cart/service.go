package cart

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
)

// MaxQuantity is the largest quantity a cart or order line can hold.
const MaxQuantity = math.MaxInt32

// AddItemRequest holds the input for adding a product variant to a cart.
// A zero CustomerID means the shopper is anonymous and nothing is stored.
type AddItemRequest struct {
	Caller     auth.Principal
	CustomerID int64
	ProductID  int64
	Weight     string
	Quantity   int
	Price      decimal.Decimal
}

// AddResult describes the outcome of Add.
type AddResult struct {
	Line Line
	// Persisted is false for anonymous shoppers.
	Persisted bool
	// Merged is true when the quantity was added to an existing line.
	Merged bool
}

// Service implements cart operations on top of a Repository.
type Service struct {
	lines Repository
}

// NewService creates a cart Service.
func NewService(lines Repository) *Service {
	return &Service{lines: lines}
}

// Get returns the cart of customerID with its total and line count.
func (s *Service) Get(ctx context.Context, caller auth.Principal, customerID int64) (*Cart, error) {
	const op = "cart.Get"

	if customerID <= 0 {
		return nil, apperr.New(apperr.Validation, op, "customer id is required")
	}
	if err := auth.AuthorizeCustomer(caller, customerID); err != nil {
		return nil, err
	}

	lines, err := s.lines.Lines(ctx, customerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}
	return Summarize(lines), nil
}

// Add puts a product variant in the cart, merging with an existing line for
// the same variant.
func (s *Service) Add(ctx context.Context, req AddItemRequest) (*AddResult, error) {
	const op = "cart.Add"

	if req.ProductID <= 0 {
		return nil, apperr.New(apperr.Validation, op, "product id is required")
	}
	if req.Quantity <= 0 {
		return nil, apperr.New(apperr.Validation, op, "quantity must be greater than 0")
	}
	if req.Quantity > MaxQuantity {
		return nil, apperr.New(apperr.Validation, op, "quantity is too large")
	}
	if req.Price.IsNegative() {
		return nil, apperr.New(apperr.Validation, op, "price must not be negative")
	}

	line := Line{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Weight:     req.Weight,
		Quantity:   req.Quantity,
		Price:      req.Price,
	}
	if req.CustomerID == 0 {
		return &AddResult{Line: line}, nil
	}
	if err := auth.AuthorizeCustomer(req.Caller, req.CustomerID); err != nil {
		return nil, err
	}

	id, merged, err := s.lines.Upsert(ctx, line)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}
	line.ID = id
	return &AddResult{Line: line, Persisted: true, Merged: merged}, nil
}

// UpdateQuantity sets the quantity of productID in the cart of customerID.
func (s *Service) UpdateQuantity(ctx context.Context, caller auth.Principal, productID, customerID int64, quantity int) error {
	const op = "cart.UpdateQuantity"

	if customerID <= 0 || quantity <= 0 {
		return apperr.New(apperr.Validation, op, "quantity and customer id are required")
	}
	if quantity > MaxQuantity {
		return apperr.New(apperr.Validation, op, "quantity is too large")
	}
	if productID <= 0 {
		return apperr.New(apperr.Validation, op, "product id is required")
	}
	if err := auth.AuthorizeCustomer(caller, customerID); err != nil {
		return err
	}

	if err := s.lines.UpdateQuantity(ctx, customerID, productID, quantity); err != nil {
		return apperr.Wrap(apperr.Storage, op, err)
	}
	return nil
}

// Remove deletes productID from the cart of customerID.
func (s *Service) Remove(ctx context.Context, caller auth.Principal, productID, customerID int64) error {
	const op = "cart.Remove"

	if customerID <= 0 {
		return apperr.New(apperr.Validation, op, "customer id is required")
	}
	if productID <= 0 {
		return apperr.New(apperr.Validation, op, "product id is required")
	}
	if err := auth.AuthorizeCustomer(caller, customerID); err != nil {
		return err
	}

	if err := s.lines.Remove(ctx, customerID, productID); err != nil {
		return apperr.Wrap(apperr.Storage, op, err)
	}
	return nil
}
