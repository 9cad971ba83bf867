package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/storefront-dev/storefront/internal/domain/order"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// ErrEmptyCart is returned when checking out a cart without items.
var ErrEmptyCart = errors.New("cart is empty")

// Receipt is the result of a placed order.
type Receipt struct {
	Order *order.Order
	Quote order.Quote
	// CartCleared is false when the order was placed but clearing the cart
	// afterwards failed.
	CartCleared bool
}

// Checkout turns the mirrored cart into an order.
type Checkout struct {
	orders   outbound.OrderGateway
	sync     *CartSync
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCheckout creates the service.
func NewCheckout(orders outbound.OrderGateway, sync *CartSync, logger *slog.Logger) *Checkout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkout{
		orders:   orders,
		sync:     sync,
		validate: newValidator(),
		logger:   logger,
	}
}

// Quote prices the cart as currently mirrored.
func (c *Checkout) Quote() order.Quote {
	return order.NewQuote(c.sync.Store().Total())
}

// PlaceOrder validates info, submits the order and clears the cart. A
// failure to clear the cart after the order went through is logged and
// reported on the receipt, not returned.
func (c *Checkout) PlaceOrder(ctx context.Context, info order.DeliveryInfo) (*Receipt, error) {
	if c.sync.Store().Len() == 0 {
		return nil, ErrEmptyCart
	}
	if err := validateInput(c.validate, "place order", info); err != nil {
		return nil, err
	}

	quote := c.Quote()
	placed, err := c.orders.PlaceOrder(ctx, order.Request{DeliveryInfo: info, Quote: quote})
	if err != nil {
		return nil, err
	}
	c.logger.Info("order placed", "order_id", placed.ID, "total", quote.Total.StringFixed(2))

	receipt := &Receipt{Order: placed, Quote: quote, CartCleared: true}
	if _, err := c.sync.Clear(ctx); err != nil {
		receipt.CartCleared = false
		c.logger.Warn("order placed but cart could not be cleared", "order_id", placed.ID, "error", err)
	}
	return receipt, nil
}
