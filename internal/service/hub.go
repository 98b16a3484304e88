package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/target/storefront-api/internal/domain/cart"
	"github.com/target/storefront-api/internal/observability/metrics"
	"github.com/target/storefront-api/internal/ports"
)

const (
	defaultHubCapacity = 10000
	defaultHubIdleTTL  = 30 * time.Minute
	hubGaugeInterval   = 15 * time.Second
)

// IdentityFactory binds an identity provider client to one visitor's cache.
type IdentityFactory func(visitorID string, cache ports.LocalCache) (ports.IdentityClient, error)

// HubDeps are the shared collaborators of every visitor.
type HubDeps struct {
	Caches      ports.LocalCacheFactory
	Profiles    ports.ProfileStore
	NewIdentity IdentityFactory
}

// HubConfig sizes the registry. Zero values use defaults.
type HubConfig struct {
	Capacity   int
	IdleTTL    time.Duration
	CartPolicy cart.LogoutPolicy
}

// ReconcilerHubOptions groups dependencies for ReconcilerHub.
type ReconcilerHubOptions struct {
	Deps      HubDeps
	Config    HubConfig
	Telemetry HubTelemetry
}

// HubTelemetry carries the optional logger and metrics recorder.
type HubTelemetry struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Visitor is everything the storefront holds for one browser.
type Visitor struct {
	ID         string
	Reconciler *SessionReconciler
	Cart       *CartStore

	identity ports.IdentityClient
}

func (v *Visitor) close() {
	v.Reconciler.Close()
	if c, ok := v.identity.(interface{ Close() }); ok {
		c.Close()
	}
}

// ErrHubClosed is returned by Visitor after Close.
var ErrHubClosed = errors.New("reconciler hub closed")

// ReconcilerHub keeps one started SessionReconciler per visitor in an
// expirable LRU. Entries expire after IdleTTL without access; evicted visitors
// are closed, which unsubscribes them from their identity client.
type ReconcilerHub struct {
	deps    HubDeps
	policy  cart.LogoutPolicy
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	closed  bool
	lru     *expirable.LRU[string, *Visitor]
	closing sync.WaitGroup
}

// NewReconcilerHub constructs a ReconcilerHub.
func NewReconcilerHub(opts ReconcilerHubOptions) *ReconcilerHub {
	if opts.Deps.Caches == nil {
		panic("LocalCacheFactory is required")
	}
	if opts.Deps.Profiles == nil {
		panic("ProfileStore is required")
	}
	if opts.Deps.NewIdentity == nil {
		panic("IdentityFactory is required")
	}
	capacity := opts.Config.Capacity
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	ttl := opts.Config.IdleTTL
	if ttl <= 0 {
		ttl = defaultHubIdleTTL
	}

	h := &ReconcilerHub{
		deps:    opts.Deps,
		policy:  opts.Config.CartPolicy,
		logger:  orDiscard(opts.Telemetry.Logger).With("component", "reconciler_hub"),
		metrics: opts.Telemetry.Metrics,
	}
	h.lru = expirable.NewLRU[string, *Visitor](capacity, h.onEvict, ttl)
	return h
}

// Visitor returns the visitor's live reconciler and cart, creating and
// starting them on first use. Each access renews the idle TTL. The hub lock is
// not held while a new visitor is built or started.
func (h *ReconcilerHub) Visitor(ctx context.Context, visitorID string) (*Visitor, error) {
	if visitorID == "" {
		return nil, errors.New("visitor ID cannot be empty")
	}
	if v, ok, err := h.lookup(visitorID); err != nil || ok {
		return v, err
	}

	v, err := h.build(visitorID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		v.close()
		return nil, ErrHubClosed
	}
	if existing, ok := h.lru.Get(visitorID); ok {
		// Lost a race for first contact; ours was never started.
		h.lru.Add(visitorID, existing)
		h.mu.Unlock()
		v.close()
		return existing, nil
	}
	h.lru.Add(visitorID, v)
	n := h.lru.Len()
	h.mu.Unlock()

	h.metrics.SetActiveReconcilers(n)
	v.Reconciler.Start(ctx)
	h.logger.DebugContext(ctx, "visitor reconciler started", "visitor_id", visitorID)
	return v, nil
}

func (h *ReconcilerHub) lookup(visitorID string) (*Visitor, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false, ErrHubClosed
	}
	v, ok := h.lru.Get(visitorID)
	if ok {
		h.lru.Add(visitorID, v)
	}
	return v, ok, nil
}

// Len reports the number of live visitors.
func (h *ReconcilerHub) Len() int { return h.lru.Len() }

// Run reports the registry size until ctx is done, then closes the hub.
func (h *ReconcilerHub) Run(ctx context.Context) error {
	ticker := time.NewTicker(hubGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.metrics.SetActiveReconcilers(h.lru.Len())
		}
	}
}

// Close evicts and closes every visitor. Safe to call more than once.
func (h *ReconcilerHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.lru.Purge()
	h.mu.Unlock()

	h.closing.Wait()
	h.metrics.SetActiveReconcilers(0)
}

// build wires a visitor without starting it; it does no cache I/O.
func (h *ReconcilerHub) build(visitorID string) (*Visitor, error) {
	cache := h.deps.Caches.ForVisitor(visitorID)
	identity, err := h.deps.NewIdentity(visitorID, cache)
	if err != nil {
		return nil, fmt.Errorf("open identity client: %w", err)
	}

	logger := h.logger.With("visitor_id", visitorID)
	store := NewCartStore(CartStoreOptions{Cache: cache, Logger: logger, Metrics: h.metrics})
	rec := NewSessionReconciler(SessionReconcilerOptions{
		Deps: ReconcilerDeps{Identity: identity, Profiles: h.deps.Profiles, Cache: cache},
		Cart: store,
		Config: ReconcilerConfig{
			CartPolicy: h.policy,
			Logger:     logger,
			Metrics:    h.metrics,
		},
	})
	return &Visitor{ID: visitorID, Reconciler: rec, Cart: store, identity: identity}, nil
}

// onEvict runs under the LRU lock, so closing happens on its own goroutine.
func (h *ReconcilerHub) onEvict(visitorID string, v *Visitor) {
	h.closing.Add(1)
	go func() {
		defer h.closing.Done()
		v.close()
		h.logger.Debug("visitor reconciler closed", "visitor_id", visitorID)
	}()
}
