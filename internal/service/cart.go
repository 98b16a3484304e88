package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/target/storefront-api/internal/domain/cart"
	"github.com/target/storefront-api/internal/observability/metrics"
	"github.com/target/storefront-api/internal/ports"
)

// CartStoreOptions groups dependencies for CartStore.
type CartStoreOptions struct {
	Cache   ports.LocalCache  // Required: visitor cache holding the "cart" key
	Logger  *slog.Logger      // Optional
	Metrics *metrics.Recorder // Optional
}

// CartStore owns one visitor's cart. Every mutation reads the persisted cart,
// applies the merge rules and writes the whole cart back before returning.
type CartStore struct {
	mu      sync.Mutex
	repo    *CartRepo
	forms   *FormValidator
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewCartStore constructs a CartStore.
func NewCartStore(opts CartStoreOptions) *CartStore {
	if opts.Cache == nil {
		panic("LocalCache is required")
	}
	logger := orDiscard(opts.Logger).With("component", "cart")
	return &CartStore{
		repo:    NewCartRepo(opts.Cache, logger),
		forms:   defaultForms,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// AddItem merges one unit of the product variant into the cart. Blank color or
// size is rejected with a validation error and leaves the cart untouched.
func (s *CartStore) AddItem(ctx context.Context, p cart.Product, color, size string) (item cart.LineItem, err error) {
	defer func() { s.metrics.ObserveCartMutation(metrics.CartMetric{Op: "add", Err: err}) }()

	form := AddToCartForm{ProductID: p.ID, Color: color, Size: size}
	if err = s.forms.ValidateAddToCart(form); err != nil {
		return cart.LineItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.repo.Load(ctx)
	item = c.Add(p, form.trimmedColor(), form.trimmedSize())
	if err = s.repo.Save(ctx, c); err != nil {
		return cart.LineItem{}, fmt.Errorf("add cart item: %w", err)
	}
	return item, nil
}

// RemoveItem drops the entry with the given key. It reports whether anything was removed.
func (s *CartStore) RemoveItem(ctx context.Context, cartID string) (removed bool, err error) {
	defer func() { s.metrics.ObserveCartMutation(metrics.CartMetric{Op: "remove", Err: err}) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.repo.Load(ctx)
	if !c.Remove(cartID) {
		return false, nil
	}
	if err = s.repo.Save(ctx, c); err != nil {
		return false, fmt.Errorf("remove cart item: %w", err)
	}
	return true, nil
}

// Clear empties the cart.
func (s *CartStore) Clear(ctx context.Context) (err error) {
	defer func() { s.metrics.ObserveCartMutation(metrics.CartMetric{Op: "clear", Err: err}) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.repo.Save(ctx, cart.Cart{}); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CurrentCount returns the sum of quantities in the persisted cart.
func (s *CartStore) CurrentCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Load(ctx).Count()
}

// Items returns the persisted line items in insertion order.
func (s *CartStore) Items(ctx context.Context) []cart.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.repo.Load(ctx).Items
	if items == nil {
		return []cart.LineItem{}
	}
	return items
}

// Summary returns the items together with their count and subtotal.
func (s *CartStore) Summary(ctx context.Context) CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.repo.Load(ctx)
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return CartSummary{Items: items, Count: c.Count(), Total: c.Total()}
}

// CartSummary is the cart view model.
type CartSummary struct {
	Items []cart.LineItem `json:"items"`
	Count int             `json:"count"`
	Total float64         `json:"total"`
}
