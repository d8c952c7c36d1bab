// Package cart implements cart pricing and the validated mutations that
// produce a new cart from an old one. Nothing in this package performs I/O.
package cart

import (
	"github.com/xenking/kart-pricing/internal/domain/product"
)

// Line is one product entry of a cart. Product is the snapshot taken when the
// line was created and is only used for display pricing.
type Line struct {
	Product  product.Product
	Quantity int
}

// Cart is an ordered sequence of lines, unique by product id.
type Cart struct {
	Lines []Line
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Quantity returns the quantity of the line holding productID, or 0.
func (c Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

func (c Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

// clone returns a copy of c whose line slice can be modified freely.
func (c Cart) clone() Cart {
	if c.Lines == nil {
		return Cart{}
	}
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) without(productID string) Cart {
	out := Cart{}
	for _, l := range c.Lines {
		if l.Product.ID != productID {
			out.Lines = append(out.Lines, l)
		}
	}
	return out
}

// Equal reports whether c and other hold the same products in the same
// order and quantities.
func (c Cart) Equal(other Cart) bool {
	if len(c.Lines) != len(other.Lines) {
		return false
	}
	for i := range c.Lines {
		if c.Lines[i].Product.ID != other.Lines[i].Product.ID || c.Lines[i].Quantity != other.Lines[i].Quantity {
			return false
		}
	}
	return true
}
