package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/domain/cart"
)

// Generic messages shown when the backend gives no detail.
const (
	msgLoadCart       = "Could not load cart data."
	msgUpdateCart     = "Could not update cart."
	msgUpdateQuantity = "Could not update quantity."
	msgRemoveItem     = "Could not remove item."
	msgClearCart      = "Could not clear cart."
)

type addLineRequest struct {
	ProductID cart.ProductID `json:"prod_id"`
	Quantity  int            `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// FetchCart retrieves the full current cart. A body that is not an object
// with an items list decodes to an empty cart. Lines are decoded one by one:
// malformed fields count as missing and a line that is not an object is
// dropped.
func (c *Client) FetchCart(ctx context.Context) (*cart.Cart, error) {
	raw, err := c.send(ctx, call{
		op:       "fetch cart",
		fallback: msgLoadCart,
		method:   http.MethodGet,
		path:     "/cart/",
	})
	if err != nil {
		return nil, err
	}

	if isEmptyBody(raw) {
		return cart.Empty(), nil
	}
	var payload struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("unexpected cart payload, treating as empty", "error", err)
		return cart.Empty(), nil
	}

	out := &cart.Cart{Lines: make([]cart.Line, 0, len(payload.Items))}
	for i, item := range payload.Items {
		line, ok := decodeLine(item)
		if !ok {
			c.logger.Warn("dropping undecodable cart line", "index", i)
			continue
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

// decodeLine decodes one cart line. A malformed field is treated as missing
// so the rest of the line survives; only a line that is not a JSON object is
// rejected.
func decodeLine(raw json.RawMessage) (cart.Line, bool) {
	if isEmptyBody(raw) {
		return cart.Line{}, false
	}
	var line cart.Line
	if err := json.Unmarshal(raw, &line); err == nil {
		return line, true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return cart.Line{}, false
	}
	line = cart.Line{}
	_ = decodeField(fields, "id", &line.ID)
	_ = decodeField(fields, "prod_id", &line.ProductID)
	if q, ok := fields["quantity"]; ok {
		line.Quantity = decodeQuantity(q)
	}
	if p, ok := fields["product"]; ok {
		line.Product = decodeProduct(p)
	}
	return line, true
}

// decodeQuantity accepts an integer or an integer in a string.
func decodeQuantity(raw json.RawMessage) *int {
	if isEmptyBody(raw) {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &v
		}
	}
	return nil
}

func decodeProduct(raw json.RawMessage) *cart.Product {
	var p *cart.Product
	if err := json.Unmarshal(raw, &p); err == nil {
		return p
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}
	p = &cart.Product{}
	_ = decodeField(fields, "id", &p.ID)
	_ = decodeField(fields, "name", &p.Name)
	_ = decodeField(fields, "price", &p.Price)
	_ = decodeField(fields, "image_url", &p.ImageURL)
	_ = decodeField(fields, "description", &p.Description)
	_ = decodeField(fields, "category", &p.Category)
	_ = decodeField(fields, "specifications", &p.Specifications)
	_ = decodeField(fields, "features", &p.Features)
	return p
}

// decodeField decodes fields[name] into dst. It reports false, leaving dst
// at its zero value, when the field is present but malformed.
func decodeField[T any](fields map[string]json.RawMessage, name string, dst *T) bool {
	raw, ok := fields[name]
	if !ok {
		return true
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// AddQuantity increments a line by delta, creating it if absent.
// A delta below 1 is rejected without sending a request.
func (c *Client) AddQuantity(ctx context.Context, id cart.ProductID, delta int) (*cart.Line, error) {
	if delta < 1 {
		return nil, apierr.Validation("add to cart", apierr.FieldError{
			Field:   "quantity",
			Message: "must be at least 1",
		})
	}

	var line *cart.Line
	err := c.do(ctx, call{
		op:       "add to cart",
		fallback: msgUpdateCart,
		method:   http.MethodPost,
		path:     "/cart/",
		json:     addLineRequest{ProductID: id, Quantity: delta},
	}, &line)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// SetQuantity sets a line's quantity. The value is sent as is; a null or
// empty response yields a nil line.
func (c *Client) SetQuantity(ctx context.Context, id cart.ProductID, n int) (*cart.Line, error) {
	var line *cart.Line
	err := c.do(ctx, call{
		op:       "set quantity",
		fallback: msgUpdateQuantity,
		method:   http.MethodPut,
		path:     "/cart/" + escape(id),
		json:     setQuantityRequest{Quantity: n},
	}, &line)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveLine deletes a line. A 404 means the line is already gone.
func (c *Client) RemoveLine(ctx context.Context, id cart.ProductID) error {
	err := c.do(ctx, call{
		op:       "remove item",
		fallback: msgRemoveItem,
		method:   http.MethodDelete,
		path:     "/cart/" + escape(id),
	}, nil)
	if apierr.StatusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}

// ClearCart removes every line.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, call{
		op:       "clear cart",
		fallback: msgClearCart,
		method:   http.MethodDelete,
		path:     "/cart/",
	}, nil)
}
