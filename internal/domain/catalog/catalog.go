// Package catalog holds the static storefront product list.
package catalog

import "github.com/target/storefront-api/internal/domain/cart"

// Item is a product as listed on the dashboard.
type Item struct {
	cart.Product
	Category string `json:"category"`
	Image    string `json:"image"`
}

// Categories lists the dashboard filters in display order.
var Categories = []string{"All", "Men's", "Women's", "Unisex"}

const placeholderImage = "/api/placeholder/200/200"

var items = []Item{
	{Product: cart.Product{ID: 1, Name: "Minimalist Face", Price: 199.00}, Category: "Men's"},
	{Product: cart.Product{ID: 2, Name: "Classic Cotton Set", Price: 199.00}, Category: "Men's"},
	{Product: cart.Product{ID: 3, Name: "Essential Duo Pack", Price: 199.00}, Category: "Unisex"},
	{Product: cart.Product{ID: 4, Name: "Toji Zenin", Price: 199.00}, Category: "Men's"},
	{Product: cart.Product{ID: 5, Name: "Relaxed Linen Shirt", Price: 199.00}, Category: "Women's"},
	{Product: cart.Product{ID: 6, Name: "Everyday Crew Tee", Price: 199.00}, Category: "Unisex"},
}

// All returns a copy of the catalog.
func All() []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		if it.Image == "" {
			it.Image = placeholderImage
		}
		out[i] = it
	}
	return out
}

// ByCategory filters the catalog. "All" or an empty category returns everything.
func ByCategory(category string) []Item {
	all := All()
	if category == "" || category == "All" {
		return all
	}
	out := make([]Item, 0, len(all))
	for _, it := range all {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// Find looks up a product by id.
func Find(id int64) (cart.Product, bool) {
	for _, it := range items {
		if it.ID == id {
			return it.Product, true
		}
	}
	return cart.Product{}, false
}
