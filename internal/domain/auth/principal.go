// Package auth holds caller identity and the credential primitives used to
// establish it: bcrypt password hashes and signed bearer tokens.
package auth

import (
	"context"
	"slices"

	"github.com/xenking/epicerie/internal/domain/apperr"
)

// Role is the authorization role attached to a customer account.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// Principal is the verified identity of the caller. The zero value is an
// anonymous caller.
type Principal struct {
	CustomerID int64
	Email      string
	Role       Role
}

// Anonymous reports whether p carries no identity.
func (p Principal) Anonymous() bool {
	return p.CustomerID == 0 && p.Role == ""
}

// Authorize checks that p holds one of the required roles.
func Authorize(p Principal, required ...Role) error {
	if p.Anonymous() {
		return apperr.New(apperr.Unauthenticated, "auth.Authorize", "authentication required")
	}
	if len(required) == 0 || slices.Contains(required, p.Role) {
		return nil
	}
	return apperr.New(apperr.Forbidden, "auth.Authorize", "insufficient role")
}

// AuthorizeCustomer checks that p may act on the resources of customerID:
// either p is that customer or p is an admin.
func AuthorizeCustomer(p Principal, customerID int64) error {
	if p.Anonymous() {
		return apperr.New(apperr.Unauthenticated, "auth.AuthorizeCustomer", "authentication required")
	}
	if p.Role == RoleAdmin || p.CustomerID == customerID {
		return nil
	}
	return apperr.New(apperr.Forbidden, "auth.AuthorizeCustomer", "access to another customer is not allowed")
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or the anonymous
// principal.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
