package auth

// Package auth contains simple hand-written test doubles for the storefront session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.LocalCache        = (*MemoryCache)(nil)
	_ ports.LocalCacheFactory = (*MemoryCacheFactory)(nil)
	_ ports.IdentityBackend   = (*FakeBackend)(nil)
	_ ports.IdentityClient    = (*FakeIdentityClient)(nil)
	_ ports.ProfileStore      = (*StaticProfiles)(nil)
)

// MemoryCache is an in-memory ports.LocalCache. Fail* fields inject errors per operation.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte

	FailRead  error
	FailWrite error
	FailErase error
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Read(_ context.Context, key string) ([]byte, error) {
	if c.FailRead != nil {
		return nil, c.FailRead
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (c *MemoryCache) Write(_ context.Context, key string, blob []byte) error {
	if c.FailWrite != nil {
		return c.FailWrite
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), blob...)
	return nil
}

func (c *MemoryCache) Erase(_ context.Context, key string) error {
	if c.FailErase != nil {
		return c.FailErase
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Raw returns the stored blob for assertions.
func (c *MemoryCache) Raw(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Put stores a blob directly, e.g. to seed corrupt data.
func (c *MemoryCache) Put(key string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), blob...)
}

// MemoryCacheFactory hands out one MemoryCache per visitor.
type MemoryCacheFactory struct {
	mu       sync.Mutex
	visitors map[string]*MemoryCache
}

// NewMemoryCacheFactory creates an empty factory.
func NewMemoryCacheFactory() *MemoryCacheFactory {
	return &MemoryCacheFactory{visitors: make(map[string]*MemoryCache)}
}

func (f *MemoryCacheFactory) ForVisitor(visitorID string) ports.LocalCache {
	return f.Visitor(visitorID)
}

// Visitor returns the concrete cache of a visitor.
func (f *MemoryCacheFactory) Visitor(visitorID string) *MemoryCache {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.visitors[visitorID]
	if !ok {
		c = NewMemoryCache()
		f.visitors[visitorID] = c
	}
	return c
}

// FakeAccount is an account known to FakeBackend.
type FakeAccount struct {
	Identity domainauth.Identity
	Password string
}

// FakeBackend simulates an identity provider with opaque tokens "tok-<n>".
// Func fields override the default behavior.
type FakeBackend struct {
	WhoamiFunc   func(ctx context.Context, token string) (domainauth.Identity, error)
	LoginFunc    func(ctx context.Context, creds domainauth.Credentials) (ports.ProviderSession, error)
	RegisterFunc func(ctx context.Context, in domainauth.SignUpInput) (ports.ProviderSession, error)
	LogoutFunc   func(ctx context.Context, token string) error

	mu       sync.Mutex
	accounts map[string]FakeAccount // by email
	sessions map[string]string      // token -> email
	issued   int
	Calls    []string
}

// NewFakeBackend creates a backend with the given accounts.
func NewFakeBackend(accounts ...FakeAccount) *FakeBackend {
	b := &FakeBackend{accounts: make(map[string]FakeAccount), sessions: make(map[string]string)}
	for _, a := range accounts {
		b.accounts[strings.ToLower(a.Identity.Email)] = a
	}
	return b
}

func (b *FakeBackend) record(call string) {
	b.mu.Lock()
	b.Calls = append(b.Calls, call)
	b.mu.Unlock()
}

// CallCount returns how many times the named method ran.
func (b *FakeBackend) CallCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *FakeBackend) Whoami(ctx context.Context, token string) (domainauth.Identity, error) {
	b.record("Whoami")
	if b.WhoamiFunc != nil {
		return b.WhoamiFunc(ctx, token)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.sessions[token]
	if !ok {
		return domainauth.Identity{}, ports.ErrNoSession
	}
	return b.accounts[email].Identity, nil
}

func (b *FakeBackend) Login(ctx context.Context, creds domainauth.Credentials) (ports.ProviderSession, error) {
	b.record("Login")
	if b.LoginFunc != nil {
		return b.LoginFunc(ctx, creds)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	acct, ok := b.accounts[email]
	if !ok || acct.Password != creds.Password {
		return ports.ProviderSession{}, ports.ErrInvalidCredentials
	}
	return ports.ProviderSession{Identity: acct.Identity, Token: b.issueLocked(email)}, nil
}

func (b *FakeBackend) Register(ctx context.Context, in domainauth.SignUpInput) (ports.ProviderSession, error) {
	b.record("Register")
	if b.RegisterFunc != nil {
		return b.RegisterFunc(ctx, in)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, exists := b.accounts[email]; exists {
		return ports.ProviderSession{}, ports.ErrAccountExists
	}
	acct := FakeAccount{
		Identity: domainauth.Identity{
			UserID:    fmt.Sprintf("user-%d", len(b.accounts)+1),
			Email:     email,
			FullName:  in.FullName(),
			ExpiresAt: time.Now().Add(time.Hour),
		},
		Password: in.Password,
	}
	b.accounts[email] = acct
	return ports.ProviderSession{Identity: acct.Identity, Token: b.issueLocked(email)}, nil
}

func (b *FakeBackend) Logout(ctx context.Context, token string) error {
	b.record("Logout")
	if b.LogoutFunc != nil {
		return b.LogoutFunc(ctx, token)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, token)
	return nil
}

// Expire ends every session of the account, as if the provider revoked it.
func (b *FakeBackend) Expire(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tok, e := range b.sessions {
		if e == strings.ToLower(email) {
			delete(b.sessions, tok)
		}
	}
}

func (b *FakeBackend) issueLocked(email string) string {
	b.issued++
	tok := fmt.Sprintf("tok-%d", b.issued)
	b.sessions[tok] = email
	return tok
}

// FakeIdentityClient is a scripted ports.IdentityClient. Emit delivers an event
// synchronously to every subscribed handler.
type FakeIdentityClient struct {
	CurrentSessionFunc func(ctx context.Context) (*domainauth.Identity, error)
	SignInFunc         func(ctx context.Context, creds domainauth.Credentials) (domainauth.Identity, error)
	SignUpFunc         func(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error)
	SignOutFunc        func(ctx context.Context) error

	mu       sync.Mutex
	handlers map[int]func(domainauth.ProviderEvent)
	next     int
}

func (c *FakeIdentityClient) CurrentSession(ctx context.Context) (*domainauth.Identity, error) {
	if c.CurrentSessionFunc != nil {
		return c.CurrentSessionFunc(ctx)
	}
	return nil, nil
}

func (c *FakeIdentityClient) OnSessionChange(handler func(domainauth.ProviderEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[int]func(domainauth.ProviderEvent))
	}
	id := c.next
	c.next++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *FakeIdentityClient) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Identity, error) {
	if c.SignInFunc != nil {
		return c.SignInFunc(ctx, creds)
	}
	return domainauth.Identity{}, errors.New("SignIn not scripted")
}

func (c *FakeIdentityClient) SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error) {
	if c.SignUpFunc != nil {
		return c.SignUpFunc(ctx, in)
	}
	return domainauth.Identity{}, ports.ErrSignUpUnsupported
}

func (c *FakeIdentityClient) SignOut(ctx context.Context) error {
	if c.SignOutFunc != nil {
		return c.SignOutFunc(ctx)
	}
	return nil
}

// Emit delivers ev to the current subscribers in subscription order.
func (c *FakeIdentityClient) Emit(ev domainauth.ProviderEvent) {
	c.mu.Lock()
	handlers := make([]func(domainauth.ProviderEvent), 0, len(c.handlers))
	for i := 0; i < c.next; i++ {
		if h, ok := c.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers reports the number of active handlers.
func (c *FakeIdentityClient) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// StaticProfiles is an in-memory ports.ProfileStore.
type StaticProfiles struct {
	GetFunc    func(ctx context.Context, userID string) (domainauth.Profile, error)
	CreateFunc func(ctx context.Context, p domainauth.Profile) error

	mu       sync.Mutex
	profiles map[string]domainauth.Profile
	Created  []domainauth.Profile
}

// NewStaticProfiles creates a store seeded with profiles.
func NewStaticProfiles(profiles ...domainauth.Profile) *StaticProfiles {
	s := &StaticProfiles{profiles: make(map[string]domainauth.Profile)}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *StaticProfiles) GetProfile(ctx context.Context, userID string) (domainauth.Profile, error) {
	if s.GetFunc != nil {
		return s.GetFunc(ctx, userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domainauth.Profile{}, apperrors.NotFound("profile not found")
	}
	return p, nil
}

func (s *StaticProfiles) CreateProfile(ctx context.Context, p domainauth.Profile) error {
	if s.CreateFunc != nil {
		return s.CreateFunc(ctx, p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		s.profiles[p.ID] = p
	}
	s.Created = append(s.Created, p)
	return nil
}

// SetRole updates the role of a stored profile.
func (s *StaticProfiles) SetRole(userID string, role domainauth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	p.Role = role
	s.profiles[userID] = p
}
