// Package order holds the checkout types exchanged with the backend.
package order

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// FlatShipping is charged on every non-empty order.
var FlatShipping = decimal.RequireFromString("10.00")

// DeliveryInfo is where an order goes.
type DeliveryInfo struct {
	FirstName string `json:"first_name" yaml:"first_name" validate:"required"`
	LastName  string `json:"last_name" yaml:"last_name" validate:"required"`
	Email     string `json:"email" yaml:"email" validate:"required,email"`
	Phone     string `json:"phone" yaml:"phone" validate:"required"`
	Street    string `json:"street" yaml:"street" validate:"required"`
	City      string `json:"city" yaml:"city" validate:"required"`
	State     string `json:"state" yaml:"state" validate:"required"`
	ZipCode   string `json:"zip_code" yaml:"zip_code" validate:"required"`
	Country   string `json:"country" yaml:"country" validate:"required"`
}

// Quote is the price breakdown of a cart at checkout time.
type Quote struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

// NewQuote applies the shipping rule to a subtotal. Amounts are rounded to cents.
func NewQuote(subtotal decimal.Decimal) Quote {
	subtotal = subtotal.Round(2)
	shipping := decimal.Zero
	if subtotal.IsPositive() {
		shipping = FlatShipping
	}
	return Quote{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Total:       subtotal.Add(shipping).Round(2),
	}
}

// Request is the payload of POST /orders/.
type Request struct {
	DeliveryInfo DeliveryInfo
	Quote        Quote
}

// MarshalJSON writes the amounts as JSON numbers, which is what the backend
// schema declares.
func (r Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DeliveryInfo DeliveryInfo `json:"delivery_info"`
		Subtotal     json.Number  `json:"subtotal"`
		ShippingFee  json.Number  `json:"shipping_fee"`
		Total        json.Number  `json:"total"`
	}{
		DeliveryInfo: r.DeliveryInfo,
		Subtotal:     json.Number(r.Quote.Subtotal.StringFixed(2)),
		ShippingFee:  json.Number(r.Quote.ShippingFee.StringFixed(2)),
		Total:        json.Number(r.Quote.Total.StringFixed(2)),
	})
}

// Order is a placed order as returned by the backend.
type Order struct {
	ID             int64           `json:"id" yaml:"id"`
	DeliveryInfoID int64           `json:"delivery_info_id,omitempty" yaml:"delivery_info_id,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal" yaml:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee" yaml:"shipping_fee"`
	Total          decimal.Decimal `json:"total" yaml:"total"`
	PaymentMethod  string          `json:"payment_method,omitempty" yaml:"payment_method,omitempty"`
	Status         string          `json:"status" yaml:"status"`
	CreatedAt      string          `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UserID         int64           `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}
