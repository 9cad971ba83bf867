package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

func testServiceLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// fakeBackend is an in-memory storefront backend covering every gateway port.
// Lines keep insertion order like the real backend.
type fakeBackend struct {
	mu       sync.Mutex
	products map[cart.ProductID]*cart.Product
	stock    map[cart.ProductID]int
	order    []cart.ProductID
	lines    map[cart.ProductID]int

	fetches int
	calls   map[string]int

	// afterSnapshot runs after FetchCart copied the cart and before it
	// returns, with the 1-based fetch number.
	afterSnapshot func(n int)

	fetchErr   error
	addErr     error
	setErr     error
	removeErr  error
	clearErr   error
	productErr error
	stockErr   error
	placeErr   error

	placed []order.Request
}

var (
	_ outbound.CartGateway    = (*fakeBackend)(nil)
	_ outbound.CatalogGateway = (*fakeBackend)(nil)
	_ outbound.OrderGateway   = (*fakeBackend)(nil)
)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: map[cart.ProductID]*cart.Product{
			"1": {ID: "1", Name: "Keyboard", Price: price("49.99"), Category: "peripherals"},
			"2": {ID: "2", Name: "Mouse", Price: price("25.00"), Category: "peripherals"},
			"3": {ID: "3", Name: "Monitor", Price: price("199.50"), Category: "displays"},
		},
		stock: map[cart.ProductID]int{"1": 10, "2": 5, "3": 0},
		lines: make(map[cart.ProductID]int),
		calls: make(map[string]int),
	}
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) setFetchErr(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) FetchCart(_ context.Context) (*cart.Cart, error) {
	f.mu.Lock()
	f.calls["fetch"]++
	f.fetches++
	n := f.fetches
	hook := f.afterSnapshot
	if f.fetchErr != nil {
		err := f.fetchErr
		f.mu.Unlock()
		return nil, err
	}
	c := cart.Empty()
	for _, id := range f.order {
		var p *cart.Product
		if src, ok := f.products[id]; ok {
			cp := *src
			p = &cp
		}
		c.Lines = append(c.Lines, cart.NewLine(id, f.lines[id], p))
	}
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return c, nil
}

func (f *fakeBackend) AddQuantity(_ context.Context, id cart.ProductID, delta int) (*cart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["add"]++
	if f.addErr != nil {
		return nil, f.addErr
	}
	if _, ok := f.products[id]; !ok {
		return nil, apierr.FromResponse("add to cart", http.StatusNotFound, []byte(`{"detail":"Product not found"}`), "")
	}
	if _, ok := f.lines[id]; !ok {
		f.order = append(f.order, id)
	}
	f.lines[id] += delta
	l := cart.NewLine(id, f.lines[id], nil)
	return &l, nil
}

func (f *fakeBackend) SetQuantity(_ context.Context, id cart.ProductID, n int) (*cart.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["set"]++
	if f.setErr != nil {
		return nil, f.setErr
	}
	if _, ok := f.lines[id]; !ok {
		return nil, apierr.FromResponse("set quantity", http.StatusNotFound, []byte(`{"detail":"Item not in cart"}`), "")
	}
	f.lines[id] = n
	l := cart.NewLine(id, n, nil)
	return &l, nil
}

func (f *fakeBackend) RemoveLine(_ context.Context, id cart.ProductID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["remove"]++
	if f.removeErr != nil {
		return f.removeErr
	}
	f.dropLocked(id)
	return nil
}

func (f *fakeBackend) ClearCart(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["clear"]++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.order = nil
	f.lines = make(map[cart.ProductID]int)
	return nil
}

func (f *fakeBackend) dropLocked(id cart.ProductID) {
	delete(f.lines, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			return
		}
	}
}

func (f *fakeBackend) Product(_ context.Context, id cart.ProductID) (*cart.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["product"]++
	if f.productErr != nil {
		return nil, f.productErr
	}
	p, ok := f.products[id]
	if !ok {
		return nil, apierr.FromResponse("load product", http.StatusNotFound, []byte(`{"detail":"Product not found"}`), "")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBackend) Inventory(_ context.Context, id cart.ProductID) (*cart.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["inventory"]++
	if f.stockErr != nil {
		return nil, f.stockErr
	}
	n, ok := f.stock[id]
	return &cart.Stock{ProductID: id, Count: n, Found: ok}, nil
}

func (f *fakeBackend) ListProducts(_ context.Context, limit int) ([]cart.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.productErr != nil {
		return nil, f.productErr
	}
	ids := make([]string, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	out := make([]cart.Product, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *f.products[cart.ProductID(id)])
	}
	return out, nil
}

func (f *fakeBackend) PlaceOrder(_ context.Context, req order.Request) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["place"]++
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	return &order.Order{
		ID:            int64(len(f.placed)),
		Subtotal:      req.Quote.Subtotal,
		ShippingFee:   req.Quote.ShippingFee,
		Total:         req.Quote.Total,
		PaymentMethod: "cash_on_delivery",
		Status:        "pending",
	}, nil
}

func (f *fakeBackend) ListOrders(_ context.Context) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["orders"]++
	out := make([]order.Order, 0, len(f.placed))
	for i, req := range f.placed {
		out = append(out, order.Order{ID: int64(i + 1), Total: req.Quote.Total, Status: "pending"})
	}
	return out, nil
}

// fakeIdentities implements outbound.IdentityGateway over a fixed user table.
type fakeIdentities struct {
	mu sync.Mutex
	// users maps credential to identity.
	users map[string]*session.Identity
	// passwords maps username to the credential issued for it.
	passwords map[string]string

	meErr     error
	meCalls   int
	meGate    chan struct{}
	signupErr error
	signups   []session.SignupRequest
}

var _ outbound.IdentityGateway = (*fakeIdentities)(nil)

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{
		users:     make(map[string]*session.Identity),
		passwords: make(map[string]string),
	}
}

// addUser registers username/password and returns the credential it logs in with.
func (f *fakeIdentities) addUser(username, password string, role session.Role) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	credential := "cred-" + username + "-" + strconv.Itoa(len(f.users)+1)
	f.users[credential] = &session.Identity{
		ID:    strconv.Itoa(len(f.users) + 1),
		Email: username,
		Role:  role,
	}
	f.passwords[username+"\x00"+password] = credential
	return credential
}

func (f *fakeIdentities) Login(_ context.Context, username, password string) (*outbound.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	credential, ok := f.passwords[username+"\x00"+password]
	if !ok {
		return nil, apierr.FromResponse("login", http.StatusUnauthorized, []byte(`{"detail":"Incorrect username or password"}`), "")
	}
	return &outbound.Token{AccessToken: credential, TokenType: "bearer"}, nil
}

func (f *fakeIdentities) Me(ctx context.Context, credential string) (*session.Identity, error) {
	f.mu.Lock()
	f.meCalls++
	gate := f.meGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	id, ok := f.users[credential]
	if !ok {
		return nil, apierr.FromResponse("load profile", http.StatusUnauthorized, []byte(`{"detail":"Could not validate credentials"}`), "")
	}
	return id.Clone(), nil
}

func (f *fakeIdentities) Signup(_ context.Context, req session.SignupRequest) (*session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	f.signups = append(f.signups, req)
	return &session.Identity{ID: strconv.Itoa(len(f.signups)), Email: req.Email, DisplayName: req.FullName, Role: session.RoleCustomer}, nil
}

func (f *fakeIdentities) meCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}
