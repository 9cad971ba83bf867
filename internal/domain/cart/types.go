// Package cart contains the client-side model of the backend-owned cart.
//
// The client never builds a cart on its own: every Cart value is a mirror of
// a GET /cart/ response. The aggregates (Total, ItemCount) are computed from
// the lines on every call so they can never drift from the line list.
package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidProductID is returned when a product identifier is empty.
var ErrInvalidProductID = errors.New("invalid product id")

// ProductID is the opaque identifier of a product. The backend uses integers,
// but the client treats the value as a string and only restores the numeric
// form on the wire.
type ProductID string

// ParseProductID validates and normalizes a user-supplied identifier.
func ParseProductID(s string) (ProductID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidProductID
	}
	return ProductID(s), nil
}

// String returns the identifier as text.
func (id ProductID) String() string {
	return string(id)
}

// MarshalJSON writes canonical integer identifiers as JSON numbers and
// everything else, "007" and "+7" included, as JSON strings, so the body
// names the same product as the /cart/{id} path.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		if canonical := strconv.FormatInt(n, 10); canonical == string(id) {
			return []byte(canonical), nil
		}
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

// Product is the denormalized product detail the backend nests inside each
// cart line. It is also the shape of GET /products/{id}.
type Product struct {
	ID             ProductID           `json:"id" yaml:"id"`
	Name           string              `json:"name" yaml:"name"`
	Price          decimal.NullDecimal `json:"price" yaml:"-"`
	ImageURL       string              `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Description    string              `json:"description,omitempty" yaml:"description,omitempty"`
	Category       string              `json:"category,omitempty" yaml:"category,omitempty"`
	Specifications string              `json:"specifications,omitempty" yaml:"specifications,omitempty"`
	Features       string              `json:"features,omitempty" yaml:"features,omitempty"`
}

// Stock is the inventory count for a single product.
// Found is false when the backend has no inventory record, which the
// storefront treats as zero stock.
type Stock struct {
	ProductID ProductID `json:"prod_id"`
	Count     int       `json:"stock"`
	Found     bool      `json:"-"`
}

// Line is one product's presence in the cart.
// Quantity and Product are pointers because partial backend responses are
// tolerated: a missing value contributes zero to the aggregates.
type Line struct {
	ID        int64     `json:"id,omitempty"`
	ProductID ProductID `json:"prod_id"`
	Quantity  *int      `json:"quantity"`
	Product   *Product  `json:"product,omitempty"`
}

// Key returns the product identifier of the line, falling back to the nested
// product when prod_id was not sent.
func (l Line) Key() ProductID {
	if l.ProductID != "" {
		return l.ProductID
	}
	if l.Product != nil {
		return l.Product.ID
	}
	return ""
}

// Qty returns the line quantity, or 0 when the backend omitted it.
func (l Line) Qty() int {
	if l.Quantity == nil {
		return 0
	}
	return *l.Quantity
}

// UnitPrice returns the price snapshot of the nested product, or zero when it
// is missing.
func (l Line) UnitPrice() decimal.Decimal {
	if l.Product == nil || !l.Product.Price.Valid {
		return decimal.Zero
	}
	return l.Product.Price.Decimal
}

// Subtotal is UnitPrice times Qty.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Qty())))
}

// Name returns the display name of the line's product.
func (l Line) Name() string {
	if l.Product != nil && l.Product.Name != "" {
		return l.Product.Name
	}
	return fmt.Sprintf("Product ID %s", l.Key())
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	out := l
	if l.Quantity != nil {
		q := *l.Quantity
		out.Quantity = &q
	}
	if l.Product != nil {
		p := *l.Product
		out.Product = &p
	}
	return out
}

// NewLine builds a line with the given quantity. Mostly useful in tests and
// fakes; real lines come from the backend.
func NewLine(id ProductID, quantity int, product *Product) Line {
	q := quantity
	return Line{ProductID: id, Quantity: &q, Product: product}
}
