// Package idp binds a stateless identity backend to one visitor: it persists the provider
// token in the visitor's local cache and turns provider state into session events.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/ports"
)

const defaultPollInterval = 30 * time.Second

// storedToken is the value kept under ports.CacheKeyProvider.
type storedToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Options configures a Client.
type Options struct {
	Backend ports.IdentityBackend
	Cache   ports.LocalCache
	// PollInterval controls how often a subscribed client asks the backend whether the
	// session is still live. Defaults to 30s.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client implements ports.IdentityClient for a single visitor.
type Client struct {
	backend ports.IdentityBackend
	cache   ports.LocalCache
	poll    time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(domainauth.ProviderEvent)
	order    []int
	nextID   int
	lastUser string // user of the last emitted or observed session
	epoch    uint64 // bumped whenever the stored token is replaced or removed
	queue    []domainauth.ProviderEvent
	wake     chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

var _ ports.IdentityClient = (*Client)(nil)

// NewClient creates a visitor-bound identity client.
func NewClient(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("identity backend is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("local cache is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:  opts.Backend,
		cache:    opts.Cache,
		poll:     poll,
		logger:   logger.With("component", "idp_client"),
		handlers: make(map[int]func(domainauth.ProviderEvent)),
		wake:     make(chan struct{}, 1),
	}, nil
}

// CurrentSession returns the live identity for the stored token, or nil when there is none.
// A token the backend no longer recognises is discarded.
func (c *Client) CurrentSession(ctx context.Context) (*domainauth.Identity, error) {
	tok, ok := c.loadToken(ctx)
	if !ok {
		c.setLastUser("")
		return nil, nil
	}
	id, err := c.backend.Whoami(ctx, tok.Token)
	if err != nil {
		if errors.Is(err, ports.ErrNoSession) {
			c.dropToken(ctx)
			c.setLastUser("")
			return nil, nil
		}
		return nil, err
	}
	c.setLastUser(id.UserID)
	return &id, nil
}

// SignIn authenticates with the backend, persists the token and emits SessionActive.
func (c *Client) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Identity, error) {
	sess, err := c.backend.Login(ctx, creds)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return c.adopt(ctx, sess)
}

// SignUp registers with the backend and, on success, behaves like SignIn.
func (c *Client) SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error) {
	sess, err := c.backend.Register(ctx, in)
	if err != nil {
		return domainauth.Identity{}, err
	}
	return c.adopt(ctx, sess)
}

// SignOut revokes the stored token. The token is discarded and SessionEnded emitted even
// when the backend call fails; the backend error is returned.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if tok, ok := c.loadToken(ctx); ok {
		err = c.backend.Logout(ctx, tok.Token)
	}
	c.dropToken(ctx)

	// Undelivered events describe a session that no longer exists.
	c.mu.Lock()
	c.epoch++
	c.lastUser = ""
	c.queue = c.queue[:0]
	c.enqueueLocked(domainauth.ProviderEvent{Kind: domainauth.EventSessionEnded})
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("provider sign out: %w", err)
	}
	return nil
}

// OnSessionChange subscribes handler. The first subscription starts event delivery and
// polling; removing the last one stops both.
func (c *Client) OnSessionChange(handler func(domainauth.ProviderEvent)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	c.order = append(c.order, id)
	if c.cancel == nil {
		c.startLocked()
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(id) })
	}
}

// Close stops background work regardless of subscribers.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Client) unsubscribe(id int) {
	c.mu.Lock()
	delete(c.handlers, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	stop := len(c.handlers) == 0
	c.mu.Unlock()
	if stop {
		c.Close()
	}
}

func (c *Client) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.dispatch(ctx)
	go c.pollLoop(ctx)
}

func (c *Client) adopt(ctx context.Context, sess ports.ProviderSession) (domainauth.Identity, error) {
	rec := storedToken{Token: sess.Token, UserID: sess.Identity.UserID, ExpiresAt: sess.Identity.ExpiresAt}
	blob, err := json.Marshal(rec)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("encode provider token: %w", err)
	}
	if err := c.cache.Write(ctx, ports.CacheKeyProvider, blob); err != nil {
		return domainauth.Identity{}, fmt.Errorf("persist provider token: %w", err)
	}

	c.mu.Lock()
	c.epoch++
	c.lastUser = sess.Identity.UserID
	c.enqueueLocked(domainauth.ProviderEvent{Kind: domainauth.EventSessionActive, Identity: sess.Identity})
	c.mu.Unlock()
	return sess.Identity, nil
}

func (c *Client) loadToken(ctx context.Context) (storedToken, bool) {
	blob, err := c.cache.Read(ctx, ports.CacheKeyProvider)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			c.logger.WarnContext(ctx, "read provider token failed", "error", err)
		}
		return storedToken{}, false
	}
	var tok storedToken
	if err := json.Unmarshal(blob, &tok); err != nil || tok.Token == "" {
		c.logger.DebugContext(ctx, "discarding unreadable provider token", "error", err)
		c.dropToken(ctx)
		return storedToken{}, false
	}
	return tok, true
}

func (c *Client) dropToken(ctx context.Context) {
	if err := c.cache.Erase(ctx, ports.CacheKeyProvider); err != nil {
		c.logger.WarnContext(ctx, "erase provider token failed", "error", err)
	}
}

func (c *Client) setLastUser(id string) {
	c.mu.Lock()
	c.lastUser = id
	c.mu.Unlock()
}

// enqueueLocked appends ev for in-order delivery. Events raised with no subscriber are dropped.
func (c *Client) enqueueLocked(ev domainauth.ProviderEvent) {
	if len(c.handlers) == 0 {
		return
	}
	c.queue = append(c.queue, ev)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			ev := c.queue[0]
			c.queue = c.queue[1:]
			handlers := make([]func(domainauth.ProviderEvent), 0, len(c.order))
			for _, id := range c.order {
				handlers = append(handlers, c.handlers[id])
			}
			c.mu.Unlock()

			for _, h := range handlers {
				h(ev)
			}
		}
	}
}

func (c *Client) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkSession(ctx)
		}
	}
}

// checkSession compares the backend's view with the last known user and emits the transition.
// A result is discarded when a sign-in or sign-out replaced the token while Whoami was running.
func (c *Client) checkSession(ctx context.Context) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	var (
		current domainauth.Identity
		live    bool
		dead    bool
	)
	if tok, ok := c.loadToken(ctx); ok {
		id, err := c.backend.Whoami(ctx, tok.Token)
		switch {
		case err == nil:
			current, live = id, true
		case errors.Is(err, ports.ErrNoSession):
			dead = true
		default:
			c.logger.DebugContext(ctx, "session poll failed", "error", err)
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.logger.DebugContext(ctx, "discarding session poll superseded by sign-in or sign-out")
		return
	}
	if dead {
		c.dropToken(ctx)
	}
	switch {
	case live && current.UserID != c.lastUser:
		c.lastUser = current.UserID
		c.enqueueLocked(domainauth.ProviderEvent{Kind: domainauth.EventSessionActive, Identity: current})
	case !live && c.lastUser != "":
		c.lastUser = ""
		c.enqueueLocked(domainauth.ProviderEvent{Kind: domainauth.EventSessionEnded})
	}
}
