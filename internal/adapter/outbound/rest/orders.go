package rest

import (
	"context"
	"net/http"

	"github.com/storefront-dev/storefront/internal/domain/order"
)

// PlaceOrder submits an order for the current cart.
func (c *Client) PlaceOrder(ctx context.Context, req order.Request) (*order.Order, error) {
	var o order.Order
	err := c.do(ctx, call{
		op:       "place order",
		fallback: "Could not place order.",
		method:   http.MethodPost,
		path:     "/orders/",
		json:     req,
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns the current user's orders.
func (c *Client) ListOrders(ctx context.Context) ([]order.Order, error) {
	var orders []order.Order
	err := c.do(ctx, call{
		op:       "list orders",
		fallback: "Could not load order history.",
		method:   http.MethodGet,
		path:     "/orders",
	}, &orders)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}
