package config

import (
	"time"

	"github.com/target/storefront-api/internal/domain/cart"
)

// StorefrontConfig tunes the per-visitor session reconcilers.
type StorefrontConfig struct {
	// CartLogoutPolicy is "retain" (the cart survives logout) or "clear".
	CartLogoutPolicy cart.LogoutPolicy `env:"CART_LOGOUT_POLICY" envDefault:"retain"`

	// ReconcilerCapacity bounds the number of live visitors held in memory.
	ReconcilerCapacity int `env:"RECONCILER_CAPACITY" envDefault:"10000"`

	// ReconcilerIdleTTL evicts visitors that have not made a request for this long.
	ReconcilerIdleTTL time.Duration `env:"RECONCILER_IDLE_TTL" envDefault:"30m"`

	// ResolveGrace is how long a guarded page waits for a pending session
	// before answering with the loading view.
	ResolveGrace time.Duration `env:"RESOLVE_GRACE" envDefault:"200ms"`
}

const (
	minReconcilerCapacity = 1
	minReconcilerIdleTTL  = time.Minute
	maxResolveGrace       = 5 * time.Second
)

// Sanitize applies guardrails to the reconciler registry settings.
func (c *StorefrontConfig) Sanitize() {
	if c.CartLogoutPolicy == "" {
		c.CartLogoutPolicy = cart.RetainOnLogout
	}
	if c.ReconcilerCapacity < minReconcilerCapacity {
		c.ReconcilerCapacity = minReconcilerCapacity
	}
	if c.ReconcilerIdleTTL < minReconcilerIdleTTL {
		c.ReconcilerIdleTTL = minReconcilerIdleTTL
	}
	if c.ResolveGrace < 0 {
		c.ResolveGrace = 0
	}
	if c.ResolveGrace > maxResolveGrace {
		c.ResolveGrace = maxResolveGrace
	}
}
