package customer

import (
	"context"
	"time"

	"github.com/xenking/epicerie/internal/domain/auth"
)

// Customer is a registered storefront account.
type Customer struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Address      string
	Phone        string
	Role         auth.Role
	RegisteredAt time.Time
}

// Principal returns the identity a token issued for c represents.
func (c *Customer) Principal() auth.Principal {
	return auth.Principal{
		CustomerID: c.ID,
		Email:      c.Email,
		Role:       c.Role,
	}
}

// Repository defines persistence operations for customers.
//
// Lookups return an apperr.NotFound error when no customer matches, and
// Create returns apperr.Conflict when the email is already registered.
type Repository interface {
	Create(ctx context.Context, c *Customer) (int64, error)
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	GetByID(ctx context.Context, id int64) (*Customer, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}
