package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// OrderSort is the ordering of an order list.
type OrderSort string

const (
	SortNewest OrderSort = "newest"
	SortOldest OrderSort = "oldest"
)

// OrderFilter narrows an order list.
type OrderFilter struct {
	// Status keeps only orders with this status (case-insensitive). Empty or
	// "all" keeps every order.
	Status string
	// Search matches the order ID or status.
	Search string
	Sort   OrderSort
}

// OrderHistory lists the signed-in user's orders.
type OrderHistory struct {
	orders outbound.OrderGateway
	auth   *AuthSession
}

// NewOrderHistory creates the service. auth may be nil to skip the local
// session check.
func NewOrderHistory(orders outbound.OrderGateway, auth *AuthSession) *OrderHistory {
	return &OrderHistory{orders: orders, auth: auth}
}

// List fetches the orders and applies f.
func (h *OrderHistory) List(ctx context.Context, f OrderFilter) ([]order.Order, error) {
	if h.auth != nil && h.auth.State() != session.StateAuthenticated {
		return nil, ErrNotAuthenticated
	}
	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	return FilterOrders(orders, f), nil
}

// FilterOrders applies f to orders and returns a new slice.
func FilterOrders(orders []order.Order, f OrderFilter) []order.Order {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && status != "all" && strings.ToLower(o.Status) != status {
			continue
		}
		if search != "" &&
			!strings.Contains(strconv.FormatInt(o.ID, 10), search) &&
			!strings.Contains(strings.ToLower(o.Status), search) {
			continue
		}
		out = append(out, o)
	}

	// created_at is ISO 8601, so string order is time order.
	newest := f.Sort != SortOldest
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt != b.CreatedAt {
			if newest {
				return a.CreatedAt > b.CreatedAt
			}
			return a.CreatedAt < b.CreatedAt
		}
		if newest {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out
}
