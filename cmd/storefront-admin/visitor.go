package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/storefront-api/internal/adapters/redis"
	"github.com/target/storefront-api/internal/bootstrap"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/cart"
	"github.com/target/storefront-api/internal/ports"
)

type showVisitorOptions struct {
	VisitorID string
	RawJSON   bool
}

type clearVisitorOptions struct {
	VisitorID   string
	SessionOnly bool
	DryRun      bool
	Yes         bool
}

func runShowVisitor(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowVisitorFlags(args)
	if err != nil {
		return err
	}

	return withLocalCache(cmdCtx, func(ctx context.Context, store *redis.LocalCacheStore) error {
		entries, dumpErr := store.Dump(ctx, opts.VisitorID)
		if dumpErr != nil {
			return fmt.Errorf("read visitor cache: %w", dumpErr)
		}
		if opts.RawJSON {
			return printRawVisitor(os.Stdout, entries)
		}
		return renderVisitor(os.Stdout, opts.VisitorID, entries)
	})
}

func runClearVisitor(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearVisitorFlags(args)
	if err != nil {
		return err
	}
	keys := visitorKeys(opts.SessionOnly)

	if opts.DryRun {
		return writef(os.Stdout, "would erase %s for visitor %s\n", strings.Join(keys, ", "), opts.VisitorID)
	}
	if confirmErr := confirmAction(clearVisitorConfirmOptions{opts: opts}, "erase cached visitor state"); confirmErr != nil {
		return confirmErr
	}

	return withLocalCache(cmdCtx, func(ctx context.Context, store *redis.LocalCacheStore) error {
		cache := store.ForVisitor(opts.VisitorID)
		for _, key := range keys {
			if eraseErr := cache.Erase(ctx, key); eraseErr != nil {
				return fmt.Errorf("erase %s: %w", key, eraseErr)
			}
		}
		// A live reconciler rewrites its record on the next provider event.
		cmdCtx.Logger.Info("visitor state cleared", "visitor_id", opts.VisitorID, "keys", keys)
		return nil
	})
}

func visitorKeys(sessionOnly bool) []string {
	if sessionOnly {
		return []string{ports.CacheKeyAuth, ports.CacheKeyProvider}
	}
	return []string{ports.CacheKeyAuth, ports.CacheKeyProvider, ports.CacheKeyCart}
}

func withLocalCache(cmdCtx *commandContext, f func(context.Context, *redis.LocalCacheStore) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	store := redis.NewLocalCacheStore(client, redis.LocalCacheOptions{
		Prefix: cmdCtx.Config.LocalCache.Prefix,
		TTL:    cmdCtx.Config.LocalCache.TTL,
	})
	return f(ctx, store)
}

// providerSummary mirrors the identity client's stored token without the token itself.
type providerSummary struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

func renderVisitor(w io.Writer, visitorID string, entries map[string][]byte) error {
	if len(entries) == 0 {
		return writef(w, "No cached state for visitor %s\n", visitorID)
	}
	if err := writef(w, "Visitor %s\n\n", visitorID); err != nil {
		return fmt.Errorf("print visitor header: %w", err)
	}
	if err := renderSession(w, entries); err != nil {
		return err
	}
	return renderCart(w, entries[ports.CacheKeyCart])
}

func renderSession(w io.Writer, entries map[string][]byte) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	var rec domainauth.CachedSessionRecord
	switch blob, ok := entries[ports.CacheKeyAuth]; {
	case !ok:
		if err := writeln(tw, "Session:\t(none)"); err != nil {
			return fmt.Errorf("print session: %w", err)
		}
	case json.Unmarshal(blob, &rec) != nil:
		if err := writeln(tw, "Session:\t(unreadable record)"); err != nil {
			return fmt.Errorf("print session: %w", err)
		}
	default:
		sess := rec.Session()
		if err := writef(tw, "Session:\tauthenticated=%t\n", sess.Authenticated); err != nil {
			return fmt.Errorf("print session: %w", err)
		}
		if sess.Authenticated {
			if err := writef(tw, "User:\t%s (%s)\nRole:\t%s\n", sess.DisplayName, sess.UserID, sess.Role); err != nil {
				return fmt.Errorf("print session user: %w", err)
			}
		}
	}

	if blob, ok := entries[ports.CacheKeyProvider]; ok {
		var p providerSummary
		line := "Provider token:\tpresent"
		if json.Unmarshal(blob, &p) == nil && p.UserID != "" {
			line += " for " + p.UserID
			if !p.ExpiresAt.IsZero() {
				line += ", expires " + p.ExpiresAt.UTC().Format(time.RFC3339)
			}
		}
		if err := writeln(tw, line); err != nil {
			return fmt.Errorf("print provider token: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush session: %w", err)
	}
	return writeln(w)
}

func renderCart(w io.Writer, blob []byte) error {
	var items []cart.LineItem
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &items); err != nil {
			return writeln(w, "Cart: (unreadable record)")
		}
	}
	if len(items) == 0 {
		return writeln(w, "Cart: empty")
	}

	c := cart.Cart{Items: items}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "CART ID\tPRODUCT\tCOLOR\tSIZE\tQTY\tUNIT"); err != nil {
		return fmt.Errorf("print cart header: %w", err)
	}
	for _, it := range items {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
			it.CartID, it.ProductName, it.Color, it.Size, it.Quantity, it.UnitPrice); err != nil {
			return fmt.Errorf("print cart row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush cart: %w", err)
	}
	return writef(w, "\n%d item(s), total %.2f\n", c.Count(), c.Total())
}

func printRawVisitor(w io.Writer, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]json.RawMessage, len(entries))
	for _, k := range keys {
		blob := entries[k]
		if k == ports.CacheKeyProvider {
			// Never print the provider credential.
			var p providerSummary
			if err := json.Unmarshal(blob, &p); err != nil {
				continue
			}
			redacted, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode provider summary: %w", err)
			}
			blob = redacted
		}
		if !json.Valid(blob) {
			continue
		}
		out[k] = blob
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode visitor cache: %w", err)
	}
	return nil
}

func parseShowVisitorFlags(args []string) (showVisitorOptions, error) {
	fs := flag.NewFlagSet("show-visitor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts showVisitorOptions
	fs.StringVar(&opts.VisitorID, "visitor", "", "Visitor id (the value of the visitor cookie)")
	fs.BoolVar(&opts.RawJSON, "raw", false, "Print the cached records as JSON")

	if err := fs.Parse(args); err != nil {
		return showVisitorOptions{}, err
	}
	opts.VisitorID = strings.TrimSpace(opts.VisitorID)
	if opts.VisitorID == "" {
		return showVisitorOptions{}, errors.New("--visitor is required")
	}
	return opts, nil
}

func parseClearVisitorFlags(args []string) (clearVisitorOptions, error) {
	fs := flag.NewFlagSet("clear-visitor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearVisitorOptions
	fs.StringVar(&opts.VisitorID, "visitor", "", "Visitor id (the value of the visitor cookie)")
	fs.BoolVar(&opts.SessionOnly, "session-only", false, "Keep the cart and erase only session state")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be erased")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearVisitorOptions{}, err
	}
	opts.VisitorID = strings.TrimSpace(opts.VisitorID)
	if opts.VisitorID == "" {
		return clearVisitorOptions{}, errors.New("--visitor is required")
	}
	return opts, nil
}

type clearVisitorConfirmOptions struct {
	opts clearVisitorOptions
}

func (c clearVisitorConfirmOptions) IsDryRun() bool { return c.opts.DryRun }
func (c clearVisitorConfirmOptions) IsYes() bool    { return c.opts.Yes }
func (c clearVisitorConfirmOptions) GetWarning() string {
	if c.opts.SessionOnly {
		return "WARNING: this signs the visitor out locally; the cart is kept."
	}
	return "WARNING: this signs the visitor out locally and empties the cart."
}

func (c clearVisitorConfirmOptions) GetTarget() string {
	return fmt.Sprintf("visitor %q", c.opts.VisitorID)
}
