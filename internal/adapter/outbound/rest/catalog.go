package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
)

// DefaultListLimit is the page size used when ListProducts gets limit <= 0.
const DefaultListLimit = 100

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id cart.ProductID) (*cart.Product, error) {
	var p cart.Product
	err := c.do(ctx, call{
		op:       "fetch product",
		fallback: "Could not load product details.",
		method:   http.MethodGet,
		path:     "/products/" + escape(id),
	}, &p)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// Inventory fetches the stock of a product. A missing inventory record is
// reported as zero stock with Found false.
func (c *Client) Inventory(ctx context.Context, id cart.ProductID) (*cart.Stock, error) {
	var s cart.Stock
	err := c.do(ctx, call{
		op:       "fetch inventory",
		fallback: "Could not load stock information.",
		method:   http.MethodGet,
		path:     "/inventory/" + escape(id),
	}, &s)
	if apierr.StatusOf(err) == http.StatusNotFound {
		return &cart.Stock{ProductID: id, Count: 0, Found: false}, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ProductID == "" {
		s.ProductID = id
	}
	s.Found = true
	return &s, nil
}

// ListProducts returns up to limit products.
func (c *Client) ListProducts(ctx context.Context, limit int) ([]cart.Product, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var products []cart.Product
	err := c.do(ctx, call{
		op:       "list products",
		fallback: "Could not load products.",
		method:   http.MethodGet,
		path:     "/products/",
		query:    url.Values{"limit": []string{strconv.Itoa(limit)}},
	}, &products)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []cart.Product{}
	}
	return products, nil
}
