package fakeapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront-dev/storefront/internal/domain/order"
)

// OrderCreate is the body of POST /orders/.
type OrderCreate struct {
	DeliveryInfo order.DeliveryInfo `json:"delivery_info"`
	Subtotal     decimal.Decimal    `json:"subtotal"`
	ShippingFee  decimal.Decimal    `json:"shipping_fee"`
	Total        decimal.Decimal    `json:"total"`
}

// PlaceOrder records an order for the user. The amounts are taken as sent;
// the cart is left untouched.
func (b *Backend) PlaceOrder(userID int64, in OrderCreate) (*order.Order, error) {
	if err := b.validate.Struct(in.DeliveryInfo); err != nil {
		return nil, b.fieldIssues(err, "delivery_info")
	}
	if in.Total.IsNegative() || in.Subtotal.IsNegative() || in.ShippingFee.IsNegative() {
		return nil, invalid(bodyIssue("total", "Input should be greater than or equal to 0", "greater_than_equal"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	o := &placedOrder{
		Order: order.Order{
			ID:             b.id("order"),
			DeliveryInfoID: b.id("delivery"),
			Subtotal:       in.Subtotal,
			ShippingFee:    in.ShippingFee,
			Total:          in.Total,
			PaymentMethod:  "cash_on_delivery",
			Status:         "pending",
			CreatedAt:      b.now().UTC().Format(time.RFC3339),
			UserID:         userID,
		},
		delivery: in.DeliveryInfo,
	}
	b.orders[userID] = append(b.orders[userID], o)
	b.logger.Debug("order placed", "order_id", o.ID, "user_id", userID, "total", o.Total.String())
	out := o.Order
	return &out, nil
}

// Orders returns the user's orders, newest first.
func (b *Backend) Orders(userID int64) []order.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]order.Order, 0, len(b.orders[userID]))
	for _, o := range b.orders[userID] {
		out = append(out, o.Order)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// SetOrderStatus changes an order's status. Only admins may call it.
func (b *Backend) SetOrderStatus(actor *User, orderID int64, status string) (*order.Order, error) {
	if actor == nil || actor.Role != "admin" {
		return nil, errorf(http.StatusForbidden, "Not enough permissions")
	}
	switch status {
	case "pending", "processing", "shipped", "delivered", "cancelled":
	default:
		return nil, invalid(bodyIssue("status", "Input should be 'pending', 'processing', 'shipped', 'delivered' or 'cancelled'", "enum"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, orders := range b.orders {
		for _, o := range orders {
			if o.ID == orderID {
				o.Status = status
				out := o.Order
				return &out, nil
			}
		}
	}
	return nil, errorf(http.StatusNotFound, "Order not found")
}
