// Package handler exposes the storefront API over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
	"github.com/xenking/epicerie/internal/domain/customer"
	"github.com/xenking/epicerie/internal/domain/order"
	"github.com/xenking/epicerie/internal/domain/product"
)

// CustomerService is the account API used by the handlers.
type CustomerService interface {
	Register(ctx context.Context, req customer.RegisterRequest) (int64, error)
	Login(ctx context.Context, email, password string) (*customer.LoginResult, error)
	ChangePassword(ctx context.Context, req customer.ChangePasswordRequest) error
}

// CartService is the cart API used by the handlers.
type CartService interface {
	Get(ctx context.Context, caller auth.Principal, customerID int64) (*cart.Cart, error)
	Add(ctx context.Context, req cart.AddItemRequest) (*cart.AddResult, error)
	UpdateQuantity(ctx context.Context, caller auth.Principal, productID, customerID int64, quantity int) error
	Remove(ctx context.Context, caller auth.Principal, productID, customerID int64) error
}

// OrderService is the order API used by the handlers.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Confirmation, error)
	History(ctx context.Context, caller auth.Principal, customerID int64) ([]order.HistoryRow, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// BestSellers caps the home page selection.
	BestSellers int
	// SecureCookies marks the token cookie Secure.
	SecureCookies bool
	// BasePath is prepended to every route, for example "/api". Empty mounts
	// the routes at the root.
	BasePath string
}

// Handler serves the storefront API, delegating business logic to the
// domain services.
type Handler struct {
	customers CustomerService
	products  product.Repository
	carts     CartService
	orders    OrderService
	auth      *Authenticator
	cfg       HandlerConfig
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	customers CustomerService,
	products product.Repository,
	carts CartService,
	orders OrderService,
	authn *Authenticator,
) *Handler {
	if cfg.BestSellers <= 0 {
		cfg.BestSellers = 6
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return &Handler{
		customers: customers,
		products:  products,
		carts:     carts,
		orders:    orders,
		auth:      authn,
		cfg:       cfg,
	}
}

// Routes registers the API on mux under cfg.BasePath.
func (h *Handler) Routes(mux *http.ServeMux) {
	optional := h.auth.Optional
	member := h.auth.Require(auth.RoleClient, auth.RoleAdmin)
	route := func(method, path string) string {
		return method + " " + h.cfg.BasePath + path
	}

	mux.Handle(route("POST", "/clients/register"), optional(http.HandlerFunc(h.RegisterCustomer)))
	mux.HandleFunc(route("POST", "/clients/login"), h.Login)
	mux.HandleFunc(route("GET", "/logout"), h.Logout)
	mux.Handle(route("PUT", "/clients/nouveauMdp/{id}"), member(http.HandlerFunc(h.ChangePassword)))

	mux.HandleFunc(route("GET", "/produits"), h.ListProducts)
	mux.HandleFunc(route("GET", "/produits/{id}"), h.GetProduct)
	mux.HandleFunc(route("GET", "/home-best-sellers"), h.BestSellers)
	mux.HandleFunc(route("GET", "/variantes/poids/{id}"), h.ListVariants)

	mux.Handle(route("GET", "/panier/{client_id}"), member(http.HandlerFunc(h.GetCart)))
	mux.Handle(route("POST", "/panier/ajouter"), optional(http.HandlerFunc(h.AddToCart)))
	mux.Handle(route("PUT", "/panier/{id}"), member(http.HandlerFunc(h.UpdateCartLine)))
	mux.Handle(route("DELETE", "/panier/{id}"), member(http.HandlerFunc(h.RemoveCartLine)))

	mux.Handle(route("POST", "/order"), member(http.HandlerFunc(h.PlaceOrder)))
	mux.Handle(route("GET", "/orders"), member(http.HandlerFunc(h.OrderHistory)))
}

func (h *Handler) imageURL(path string) string {
	if h.cfg.ImageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
