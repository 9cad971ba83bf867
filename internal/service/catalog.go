package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// DefaultProductLimit is the page size used when none is given.
const DefaultProductLimit = 100

// Catalog lists products for browsing.
type Catalog struct {
	gateway outbound.CatalogGateway
	logger  *slog.Logger
}

// NewCatalog creates the service.
func NewCatalog(gateway outbound.CatalogGateway, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{gateway: gateway, logger: logger}
}

// ListProducts returns up to limit products; limit <= 0 means the default.
func (c *Catalog) ListProducts(ctx context.Context, limit int) ([]cart.Product, error) {
	if limit <= 0 {
		limit = DefaultProductLimit
	}
	products, err := c.gateway.ListProducts(ctx, limit)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("listed products", "count", len(products), "limit", limit)
	return products, nil
}

// Product returns a single product.
func (c *Catalog) Product(ctx context.Context, id cart.ProductID) (*cart.Product, error) {
	if id == "" {
		return nil, cart.ErrInvalidProductID
	}
	return c.gateway.Product(ctx, id)
}

// Categories returns the distinct non-empty categories, sorted.
func Categories(products []cart.Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := make([]string, 0)
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out
}

// ProductFilter narrows a product list.
type ProductFilter struct {
	// Query matches name, description or category, case-insensitively.
	Query string
	// Categories keeps only products in one of these categories. Empty keeps all.
	Categories []string
}

// FilterProducts returns the products matching f, in their original order.
func FilterProducts(products []cart.Product, f ProductFilter) []cart.Product {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	allowed := make(map[string]struct{}, len(f.Categories))
	for _, c := range f.Categories {
		allowed[c] = struct{}{}
	}

	out := make([]cart.Product, 0, len(products))
	for _, p := range products {
		if len(allowed) > 0 {
			if _, ok := allowed[p.Category]; !ok {
				continue
			}
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) &&
			!strings.Contains(strings.ToLower(p.Category), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}
