package cart

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
)

// Cart is the ordered collection of lines as returned by the backend.
// Order is the backend's insertion order and is not stable across fetches.
type Cart struct {
	Lines []Line `json:"items"`
}

// Empty returns a cart with zero lines.
func Empty() *Cart {
	return &Cart{Lines: []Line{}}
}

// Len returns the number of lines. A nil cart has zero lines.
func (c *Cart) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Lines)
}

// Total is the sum of unit price times quantity over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemCount is the sum of quantities over all lines.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, l := range c.Lines {
		n += l.Qty()
	}
	return n
}

// Find returns the line for the given product.
func (c *Cart) Find(id ProductID) (Line, bool) {
	if c == nil {
		return Line{}, false
	}
	for _, l := range c.Lines {
		if l.Key() == id {
			return l, true
		}
	}
	return Line{}, false
}

// Clone returns a deep copy. Cloning nil yields an empty cart.
func (c *Cart) Clone() *Cart {
	out := &Cart{Lines: make([]Line, 0, c.Len())}
	if c == nil {
		return out
	}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, l.Clone())
	}
	return out
}

// Normalize returns a copy that honors the cart invariants: one line per
// product and no line with an explicit quantity below 1. Duplicate lines are
// merged into the first occurrence; the merged product IDs are returned so
// the caller can report them. Lines without a quantity are kept.
func (c *Cart) Normalize() (*Cart, []ProductID) {
	out := &Cart{Lines: make([]Line, 0, c.Len())}
	if c == nil {
		return out, nil
	}
	index := make(map[ProductID]int, len(c.Lines))
	var merged []ProductID
	for _, l := range c.Lines {
		if l.Quantity != nil && *l.Quantity < 1 {
			continue
		}
		key := l.Key()
		if i, ok := index[key]; ok && key != "" {
			q := out.Lines[i].Qty() + l.Qty()
			out.Lines[i].Quantity = &q
			merged = append(merged, key)
			continue
		}
		index[key] = len(out.Lines)
		out.Lines = append(out.Lines, l.Clone())
	}
	return out, merged
}

// Fingerprint hashes the observable content of the cart (product, quantity,
// price, in order). Two carts with equal fingerprints render identically.
func (c *Cart) Fingerprint() uint64 {
	d := xxhash.New()
	if c == nil {
		return d.Sum64()
	}
	for _, l := range c.Lines {
		_, _ = d.WriteString(string(l.Key()))
		_, _ = d.WriteString("|")
		if l.Quantity == nil {
			_, _ = d.WriteString("-")
		} else {
			_, _ = d.WriteString(strconv.Itoa(*l.Quantity))
		}
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(l.UnitPrice().String())
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(l.Name())
		_, _ = d.WriteString(";")
	}
	return d.Sum64()
}
