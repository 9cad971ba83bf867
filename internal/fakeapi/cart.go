package fakeapi

import (
	"net/http"

	"github.com/storefront-dev/storefront/internal/domain/cart"
)

// Cart returns the user's cart with each line's product nested.
func (b *Backend) Cart(userID int64) *cart.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := cart.Empty()
	for _, l := range b.carts[userID] {
		out.Lines = append(out.Lines, b.lineLocked(l))
	}
	return out
}

// AddToCart increments a line, creating it if needed. The resulting quantity
// may not exceed the product's stock.
func (b *Backend) AddToCart(userID int64, id cart.ProductID, qty int) (*cart.Line, error) {
	if qty < 1 {
		return nil, invalid(bodyIssue("quantity", "Input should be greater than 0", "greater_than"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.products[id]; !ok {
		return nil, errorf(http.StatusNotFound, "Product with ID %s not found.", id)
	}
	stock := b.inventory[id]

	line := b.findLocked(userID, id)
	if line != nil {
		total := line.qty + qty
		if total > stock {
			return nil, errorf(http.StatusBadRequest,
				"Cannot add %d item(s). Requested total (%d) exceeds available stock (%d). You currently have %d in your cart.",
				qty, total, stock, line.qty)
		}
		line.qty = total
	} else {
		if qty > stock {
			return nil, errorf(http.StatusBadRequest, "Cannot add %d item(s). Only %d available in stock.", qty, stock)
		}
		line = &cartLine{id: b.id("line"), pid: id, qty: qty}
		b.carts[userID] = append(b.carts[userID], line)
	}
	out := b.lineLocked(line)
	return &out, nil
}

// SetCartQuantity replaces the quantity of an existing line.
func (b *Backend) SetCartQuantity(userID int64, id cart.ProductID, qty int) (*cart.Line, error) {
	if qty < 1 {
		return nil, invalid(bodyIssue("quantity", "Input should be greater than 0", "greater_than"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	line := b.findLocked(userID, id)
	if line == nil {
		return nil, errorf(http.StatusNotFound, "Product ID %s not found in cart.", id)
	}
	if stock := b.inventory[id]; qty > stock {
		return nil, errorf(http.StatusBadRequest, "Cannot set quantity to %d. Only %d available in stock.", qty, stock)
	}
	line.qty = qty
	out := b.lineLocked(line)
	return &out, nil
}

// RemoveFromCart deletes a line.
func (b *Backend) RemoveFromCart(userID int64, id cart.ProductID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.carts[userID]
	for i, l := range lines {
		if l.pid == id {
			b.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return errorf(http.StatusNotFound, "Product ID %s not found in cart.", id)
}

// ClearCart deletes every line of the user's cart.
func (b *Backend) ClearCart(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.carts, userID)
}

// findLocked returns the user's line for id. Caller must hold b.mu.
func (b *Backend) findLocked(userID int64, id cart.ProductID) *cartLine {
	for _, l := range b.carts[userID] {
		if l.pid == id {
			return l
		}
	}
	return nil
}

// lineLocked renders a line with its product. Caller must hold b.mu.
func (b *Backend) lineLocked(l *cartLine) cart.Line {
	var p *cart.Product
	if src, ok := b.products[l.pid]; ok {
		cp := *src
		p = &cp
	}
	out := cart.NewLine(l.pid, l.qty, p)
	out.ID = l.id
	return out
}
