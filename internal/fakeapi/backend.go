// Package fakeapi is an in-memory implementation of the storefront REST
// backend: users with bcrypt password hashes and HS256 bearer tokens, a
// product catalog with inventory, per-user carts and orders.
//
// It reproduces the backend's validation rules and error details closely
// enough for end-to-end tests and for `storefront mock-backend`. The HTTP
// surface lives in internal/adapter/inbound/http.
package fakeapi

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/order"
)

// DefaultTokenTTL matches the backend's default access token lifetime.
const DefaultTokenTTL = 30 * time.Minute

// Error is a failed backend operation, rendered as {"detail": Detail}.
type Error struct {
	Status int
	// Detail is a string or a []FieldIssue.
	Detail any
}

// Error implements error.
func (e *Error) Error() string {
	if s, ok := e.Detail.(string); ok {
		return fmt.Sprintf("%d: %s", e.Status, s)
	}
	return fmt.Sprintf("%d: %v", e.Status, e.Detail)
}

// FieldIssue is one entry of a request validation failure.
type FieldIssue struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Detail: fmt.Sprintf(format, args...)}
}

func invalid(issues ...FieldIssue) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Detail: issues}
}

func bodyIssue(field, msg, typ string) FieldIssue {
	return FieldIssue{Loc: []any{"body", field}, Msg: msg, Type: typ}
}

// User is an account as the backend returns it.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	hash []byte
}

type cartLine struct {
	id  int64
	pid cart.ProductID
	qty int
}

type placedOrder struct {
	order.Order
	delivery order.DeliveryInfo
}

// Backend holds all state. It is safe for concurrent use.
type Backend struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
	validate *validator.Validate

	mu        sync.Mutex
	users     map[string]*User // by email
	products  map[cart.ProductID]*cart.Product
	catalog   []cart.ProductID // insertion order
	inventory map[cart.ProductID]int
	carts     map[int64][]*cartLine
	orders    map[int64][]*placedOrder
	nextID    map[string]int64
}

// Option configures a Backend.
type Option func(*Backend)

// WithSecret sets the token signing key. Defaults to a random key.
func WithSecret(secret []byte) Option {
	return func(b *Backend) {
		if len(secret) > 0 {
			b.secret = secret
		}
	}
}

// WithTokenTTL sets how long issued tokens are valid.
func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.tokenTTL = d
		}
	}
}

// WithClock overrides the clock used for timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		tokenTTL:  DefaultTokenTTL,
		now:       time.Now,
		logger:    slog.Default(),
		validate:  newValidator(),
		users:     make(map[string]*User),
		products:  make(map[cart.ProductID]*cart.Product),
		inventory: make(map[cart.ProductID]int),
		carts:     make(map[int64][]*cartLine),
		orders:    make(map[int64][]*placedOrder),
		nextID:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.secret == nil {
		b.secret = make([]byte, 32)
		_, _ = rand.Read(b.secret)
	}
	return b
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// id hands out sequential identifiers per kind. Caller must hold b.mu.
func (b *Backend) id(kind string) int64 {
	b.nextID[kind]++
	return b.nextID[kind]
}

// AddProduct adds p to the catalog with an inventory record of stock.
// A negative stock leaves the product without an inventory record.
// p.ID is assigned when empty. The stored product is returned.
func (b *Backend) AddProduct(p cart.Product, stock int) cart.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == "" {
		p.ID = cart.ProductID(fmt.Sprint(b.id("product")))
	}
	if _, exists := b.products[p.ID]; !exists {
		b.catalog = append(b.catalog, p.ID)
	}
	stored := p
	b.products[p.ID] = &stored
	if stock >= 0 {
		b.inventory[p.ID] = stock
	} else {
		delete(b.inventory, p.ID)
	}
	return stored
}

// SetStock replaces the inventory count of a product.
func (b *Backend) SetStock(id cart.ProductID, stock int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inventory[id] = stock
}

// Product returns one product.
func (b *Backend) Product(id cart.ProductID) (*cart.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.products[id]
	if !ok {
		return nil, errorf(http.StatusNotFound, "Product not found")
	}
	cp := *p
	return &cp, nil
}

// Products returns up to limit products after skipping skip of them.
func (b *Backend) Products(skip, limit int) ([]cart.Product, error) {
	if skip < 0 {
		return nil, invalid(FieldIssue{Loc: []any{"query", "skip"}, Msg: "Input should be greater than or equal to 0", Type: "greater_than_equal"})
	}
	if limit < 1 || limit > 500 {
		return nil, invalid(FieldIssue{Loc: []any{"query", "limit"}, Msg: "Input should be between 1 and 500", Type: "value_error"})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cart.Product, 0, limit)
	for i, id := range b.catalog {
		if i < skip {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *b.products[id])
	}
	return out, nil
}

// Inventory returns the stock record of a product.
func (b *Backend) Inventory(id cart.ProductID) (*cart.Stock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.products[id]; !ok {
		return nil, errorf(http.StatusNotFound, "Product with id %s not found.", id)
	}
	n, ok := b.inventory[id]
	if !ok {
		return nil, errorf(http.StatusNotFound, "Inventory for product id %s not found.", id)
	}
	return &cart.Stock{ProductID: id, Count: n, Found: true}, nil
}

// SeedDemo fills the catalog with a few products and creates an admin and a
// customer account.
func (b *Backend) SeedDemo() error {
	price := func(s string) cart.Product {
		return cart.Product{Price: mustPrice(s)}
	}
	items := []struct {
		name, category, price string
		stock                 int
	}{
		{"Oak Desk", "desks", "249.00", 4},
		{"Standing Desk", "desks", "499.00", 2},
		{"Desk Lamp", "lighting", "34.50", 25},
		{"Floor Lamp", "lighting", "89.99", 0},
		{"Ergonomic Chair", "seating", "319.00", 6},
		{"Cable Tray", "accessories", "19.99", -1},
	}
	for _, it := range items {
		p := price(it.price)
		p.Name = it.name
		p.Category = it.category
		p.Description = it.name + " for the home office."
		b.AddProduct(p, it.stock)
	}

	if _, err := b.CreateUser("admin@example.com", "admin-password", "Store Admin", "admin"); err != nil {
		return err
	}
	if _, err := b.CreateUser("customer@example.com", "customer-password", "Demo Customer", "customer"); err != nil {
		return err
	}
	return nil
}

// Stats is a point-in-time count of the backend's records.
type Stats struct {
	Users    int
	Products int
	Orders   int
}

// Stats counts users, products and orders.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{Users: len(b.users), Products: len(b.products)}
	for _, orders := range b.orders {
		s.Orders += len(orders)
	}
	return s
}
