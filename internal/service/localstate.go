package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/cart"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/ports"
)

// AuthRecordRepo reads and writes the cached session record under the "auth" key.
type AuthRecordRepo struct {
	cache  ports.LocalCache
	logger *slog.Logger
}

// NewAuthRecordRepo wraps a visitor cache. Logger may be nil.
func NewAuthRecordRepo(cache ports.LocalCache, logger *slog.Logger) *AuthRecordRepo {
	if cache == nil {
		panic("LocalCache is required")
	}
	return &AuthRecordRepo{cache: cache, logger: orDiscard(logger)}
}

// Load returns the cached record. Missing, unreadable or corrupt records report false.
func (r *AuthRecordRepo) Load(ctx context.Context) (domainauth.CachedSessionRecord, bool) {
	var rec domainauth.CachedSessionRecord
	if !readJSON(ctx, r.cache, ports.CacheKeyAuth, &rec, r.logger) {
		return domainauth.CachedSessionRecord{}, false
	}
	return rec, true
}

// Save replaces the record with the durable form of s.
func (r *AuthRecordRepo) Save(ctx context.Context, s domainauth.Session) error {
	blob, err := json.Marshal(domainauth.RecordOf(s))
	if err != nil {
		return fmt.Errorf("encode auth record: %w", err)
	}
	if err := r.cache.Write(ctx, ports.CacheKeyAuth, blob); err != nil {
		return fmt.Errorf("write auth record: %w", err)
	}
	return nil
}

// Clear erases the record.
func (r *AuthRecordRepo) Clear(ctx context.Context) error {
	if err := r.cache.Erase(ctx, ports.CacheKeyAuth); err != nil {
		return fmt.Errorf("erase auth record: %w", err)
	}
	return nil
}

// CartRepo reads and writes the whole cart under the "cart" key.
type CartRepo struct {
	cache  ports.LocalCache
	logger *slog.Logger
}

// NewCartRepo wraps a visitor cache. Logger may be nil.
func NewCartRepo(cache ports.LocalCache, logger *slog.Logger) *CartRepo {
	if cache == nil {
		panic("LocalCache is required")
	}
	return &CartRepo{cache: cache, logger: orDiscard(logger)}
}

// Load returns the persisted cart, or an empty cart when it is missing or corrupt.
func (r *CartRepo) Load(ctx context.Context) cart.Cart {
	var items []cart.LineItem
	if !readJSON(ctx, r.cache, ports.CacheKeyCart, &items, r.logger) {
		return cart.Cart{}
	}
	return cart.Normalize(items)
}

// Save replaces the persisted cart.
func (r *CartRepo) Save(ctx context.Context, c cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	blob, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := r.cache.Write(ctx, ports.CacheKeyCart, blob); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	return nil
}

// readJSON decodes key into dst. Every failure is logged and reported as absent.
func readJSON(ctx context.Context, cache ports.LocalCache, key string, dst any, logger *slog.Logger) bool {
	blob, err := cache.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			logger.WarnContext(ctx, "local cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		logger.DebugContext(ctx, "discarding corrupt cache entry",
			"key", key, "error", apperrors.CacheCorrupt(err, key))
		return false
	}
	return true
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
