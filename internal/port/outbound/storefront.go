// Package outbound defines the outbound port interfaces for talking to the
// storefront backend.
package outbound

import (
	"context"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

// CartGateway is the remote cart resource owned by the backend.
// Every method attaches the current credential when one is present.
type CartGateway interface {
	// FetchCart returns the full current cart.
	FetchCart(ctx context.Context) (*cart.Cart, error)

	// AddQuantity increments a line by delta (delta >= 1), creating it if absent.
	AddQuantity(ctx context.Context, id cart.ProductID, delta int) (*cart.Line, error)

	// SetQuantity sets an exact quantity. It does not interpret n < 1;
	// that policy belongs to the caller. Returns nil when the backend
	// reports no resulting line.
	SetQuantity(ctx context.Context, id cart.ProductID, n int) (*cart.Line, error)

	// RemoveLine deletes a line. Removing an absent line is not an error.
	RemoveLine(ctx context.Context, id cart.ProductID) error

	// ClearCart removes every line in one call.
	ClearCart(ctx context.Context) error
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// IdentityGateway issues and validates credentials.
type IdentityGateway interface {
	// Login exchanges a username and password for a bearer credential.
	Login(ctx context.Context, username, password string) (*Token, error)

	// Me resolves the identity behind an explicit credential.
	Me(ctx context.Context, credential string) (*session.Identity, error)

	// Signup creates a user account.
	Signup(ctx context.Context, req session.SignupRequest) (*session.Identity, error)
}

// CatalogGateway reads products and stock.
type CatalogGateway interface {
	Product(ctx context.Context, id cart.ProductID) (*cart.Product, error)

	// Inventory returns the stock of a product. A product without an
	// inventory record yields Count 0 and Found false.
	Inventory(ctx context.Context, id cart.ProductID) (*cart.Stock, error)

	ListProducts(ctx context.Context, limit int) ([]cart.Product, error)
}

// OrderGateway places and lists orders.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req order.Request) (*order.Order, error)
	ListOrders(ctx context.Context) ([]order.Order, error)
}
