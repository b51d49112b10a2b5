package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs bearer tokens for a principal.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, error)
}

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Caller       auth.Principal
	FirstName    string
	LastName     string
	Email        string
	Password     string
	Address      string
	Phone        string
	Role         auth.Role
	RegisteredAt time.Time
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token    string
	Customer *Customer
}

// ChangePasswordRequest holds the input for a password change.
type ChangePasswordRequest struct {
	Caller     auth.Principal
	CustomerID int64
	Current    string
	New        string
}

// Service implements account registration and credential checks.
type Service struct {
	customers Repository
	hasher    PasswordHasher
	tokens    TokenIssuer
	now       func() time.Time
}

// NewService creates a customer Service.
func NewService(customers Repository, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{
		customers: customers,
		hasher:    hasher,
		tokens:    tokens,
		now:       time.Now,
	}
}

// Register creates a new account and returns its id. Only an admin caller
// may create another admin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	const op = "customer.Register"

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return 0, apperr.New(apperr.Validation, op, "a valid email is required")
	}
	if req.Password == "" {
		return 0, apperr.New(apperr.Validation, op, "password is required")
	}

	role := req.Role
	if role == "" {
		role = auth.RoleClient
	}
	if !role.Valid() {
		return 0, apperr.Errorf(apperr.Validation, op, "unknown role %q", role)
	}
	if role == auth.RoleAdmin && req.Caller.Role != auth.RoleAdmin {
		return 0, apperr.New(apperr.Forbidden, op, "only an admin can register an admin")
	}

	switch _, err := s.customers.GetByEmail(ctx, email); {
	case err == nil:
		return 0, apperr.New(apperr.Conflict, op, "email already in use")
	case !errors.Is(err, apperr.NotFound):
		return 0, apperr.Wrap(apperr.Storage, op, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, op, err)
	}

	registeredAt := req.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = s.now()
	}

	id, err := s.customers.Create(ctx, &Customer{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: hash,
		Address:      req.Address,
		Phone:        req.Phone,
		Role:         role,
		RegisteredAt: registeredAt,
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.Storage, op, err)
	}
	return id, nil
}

// Login checks the password of the account registered under email and
// issues a bearer token for it.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "customer.Login"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.New(apperr.Validation, op, "email and password are required")
	}

	c, err := s.customers.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}
	if err := s.hasher.Compare(c.PasswordHash, password); err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, op, err)
	}

	token, err := s.tokens.Issue(c.Principal())
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}
	return &LoginResult{Token: token, Customer: c}, nil
}

// ChangePassword replaces the password of req.CustomerID after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	const op = "customer.ChangePassword"

	if req.CustomerID <= 0 {
		return apperr.New(apperr.Validation, op, "customer id is required")
	}
	if req.Current == "" || req.New == "" {
		return apperr.New(apperr.Validation, op, "current and new passwords are required")
	}
	if err := auth.AuthorizeCustomer(req.Caller, req.CustomerID); err != nil {
		return err
	}

	c, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return apperr.Wrap(apperr.Storage, op, err)
	}
	if err := s.hasher.Compare(c.PasswordHash, req.Current); err != nil {
		return apperr.Wrap(apperr.Unauthenticated, op, err)
	}

	hash, err := s.hasher.Hash(req.New)
	if err != nil {
		return apperr.Wrap(apperr.Storage, op, err)
	}
	if err := s.customers.UpdatePassword(ctx, req.CustomerID, hash); err != nil {
		return apperr.Wrap(apperr.Storage, op, err)
	}
	return nil
}
