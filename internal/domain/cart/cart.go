// Package cart holds the pure line-item merge rules of the storefront cart.
package cart

import (
	"fmt"
	"strings"
)

// Product is the catalog entry a line item is created from.
type Product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// LineItem is a single cart entry. Quantity is always >= 1.
type LineItem struct {
	CartID      string  `json:"cartId"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	Color       string  `json:"color"`
	Size        string  `json:"size"`
	Quantity    int     `json:"quantity"`
}

// keyEscaper keeps Key injective when a color or size contains the separator.
var keyEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// Key returns the identity key of a product variant: "<productId>-<color>-<size>".
// A "-" or "%" inside color or size is percent-encoded, so "1-Black-M" stays as
// is while ("Black-M", "L") and ("Black", "M-L") get distinct keys.
func Key(productID int64, color, size string) string {
	return fmt.Sprintf("%d-%s-%s", productID, keyEscaper.Replace(color), keyEscaper.Replace(size))
}

// variant is the identity of a line item.
type variant struct {
	productID int64
	color     string
	size      string
}

func (it LineItem) variant() variant {
	return variant{productID: it.ProductID, color: it.Color, size: it.Size}
}

// Cart is an ordered list of line items with unique keys.
type Cart struct {
	Items []LineItem
}

// Add merges one unit of the variant into the cart and returns the affected item.
// Color and size must be non-empty; callers validate before calling.
func (c *Cart) Add(p Product, color, size string) LineItem {
	want := variant{productID: p.ID, color: color, size: size}
	for i := range c.Items {
		if c.Items[i].variant() == want {
			c.Items[i].Quantity++
			return c.Items[i]
		}
	}
	item := LineItem{
		CartID:      Key(p.ID, color, size),
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Color:       color,
		Size:        size,
		Quantity:    1,
	}
	c.Items = append(c.Items, item)
	return item
}

// Remove drops the entry with the given key. It reports whether anything was removed.
func (c *Cart) Remove(cartID string) bool {
	for i := range c.Items {
		if c.Items[i].CartID == cartID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the sum of all quantities.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Total returns the cart subtotal.
func (c Cart) Total() float64 {
	var t float64
	for _, it := range c.Items {
		t += it.UnitPrice * float64(it.Quantity)
	}
	return t
}

// Normalize repairs a decoded cart: entries with a non-positive quantity are
// dropped, keys are recomputed and duplicate keys are merged by summing quantity.
func Normalize(items []LineItem) Cart {
	out := Cart{Items: make([]LineItem, 0, len(items))}
	index := make(map[variant]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 || strings.TrimSpace(it.Color) == "" || strings.TrimSpace(it.Size) == "" {
			continue
		}
		it.CartID = Key(it.ProductID, it.Color, it.Size)
		if i, ok := index[it.variant()]; ok {
			out.Items[i].Quantity += it.Quantity
			continue
		}
		index[it.variant()] = len(out.Items)
		out.Items = append(out.Items, it)
	}
	return out
}
