package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// Stock check errors returned by ProductDetails.AddToCart.
var (
	ErrStockUnknown      = errors.New("stock information is unavailable")
	ErrOutOfStock        = errors.New("this item is out of stock")
	ErrInsufficientStock = errors.New("not enough stock")
)

// ProductView is a product together with its stock as loaded for one page.
type ProductView struct {
	Product *cart.Product
	// Stock is nil when the inventory lookup failed for a reason other than
	// a missing record.
	Stock *cart.Stock
	// StockErr is the inventory failure, if any.
	StockErr error
}

// StockKnown reports whether the stock count can be trusted.
func (v *ProductView) StockKnown() bool {
	return v != nil && v.Stock != nil
}

// InStock returns the available count, 0 when unknown.
func (v *ProductView) InStock() int {
	if !v.StockKnown() {
		return 0
	}
	return v.Stock.Count
}

// ProductDetails loads a product page and adds it to the cart within the
// limits of the known stock.
type ProductDetails struct {
	catalog outbound.CatalogGateway
	sync    *CartSync
	logger  *slog.Logger
}

// NewProductDetails creates the service.
func NewProductDetails(catalog outbound.CatalogGateway, sync *CartSync, logger *slog.Logger) *ProductDetails {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductDetails{catalog: catalog, sync: sync, logger: logger}
}

// Load fetches the product and its inventory concurrently. Both requests
// always run to completion. A product failure is returned; an inventory
// failure only leaves the stock unknown.
func (d *ProductDetails) Load(ctx context.Context, id cart.ProductID) (*ProductView, error) {
	if id == "" {
		return nil, cart.ErrInvalidProductID
	}

	view := &ProductView{}
	var g errgroup.Group
	g.Go(func() error {
		p, err := d.catalog.Product(ctx, id)
		if err != nil {
			return err
		}
		view.Product = p
		return nil
	})
	g.Go(func() error {
		stock, err := d.catalog.Inventory(ctx, id)
		if err != nil {
			view.StockErr = err
			return nil
		}
		view.Stock = stock
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if view.StockErr != nil {
		d.logger.Warn("failed to load stock", "product_id", id.String(), "error", view.StockErr)
	} else if !view.Stock.Found {
		d.logger.Debug("no inventory record, assuming out of stock", "product_id", id.String())
	}
	return view, nil
}

// AddToCart checks qty against the loaded stock and adds it to the cart.
func (d *ProductDetails) AddToCart(ctx context.Context, view *ProductView, qty int) (Outcome, error) {
	if view == nil || view.Product == nil {
		return Outcome{Intent: IntentAdd}, cart.ErrInvalidProductID
	}
	id := view.Product.ID
	out := Outcome{Intent: IntentAdd, ProductID: id}

	if err := CheckStock(view, qty); err != nil {
		return out, err
	}
	return d.sync.Add(ctx, id, qty)
}

// CheckStock applies the add-to-cart rules: a positive quantity, a known
// stock count, something in stock, and no more than what is in stock.
func CheckStock(view *ProductView, qty int) error {
	switch {
	case qty < 1:
		return apierr.Validation("add to cart", apierr.FieldError{Field: "quantity", Message: "must be at least 1"})
	case !view.StockKnown():
		return ErrStockUnknown
	case view.Stock.Count <= 0:
		return ErrOutOfStock
	case qty > view.Stock.Count:
		return fmt.Errorf("%w: cannot add %d, only %d available", ErrInsufficientStock, qty, view.Stock.Count)
	}
	return nil
}
