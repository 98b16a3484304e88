package ports

// Package ports defines interfaces (hexagonal ports) for storefront session behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
)

// ErrNoSession is returned by identity backends when the token does not resolve to a live session.
var ErrNoSession = errors.New("no active session")

// ErrInvalidCredentials is returned by identity backends when sign-in is rejected.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrAccountExists is returned by Register when the email is already registered.
var ErrAccountExists = errors.New("account already exists")

// ErrSignUpUnsupported is returned by backends that cannot register accounts.
var ErrSignUpUnsupported = errors.New("sign-up not supported by identity provider")

// IdentityClient is a visitor-bound identity provider client.
// CurrentSession returns (nil, nil) when the visitor has no session.
type IdentityClient interface {
	CurrentSession(ctx context.Context) (*domainauth.Identity, error)
	// OnSessionChange registers handler for session transitions and returns the unsubscribe handle.
	// Events are delivered in emission order on a single goroutine.
	OnSessionChange(handler func(domainauth.ProviderEvent)) (unsubscribe func())
	SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Identity, error)
	SignUp(ctx context.Context, in domainauth.SignUpInput) (domainauth.Identity, error)
	SignOut(ctx context.Context) error
}

// ProviderSession is what a backend hands back after authenticating.
// Token is the opaque provider credential the client persists for later lookups.
type ProviderSession struct {
	Identity domainauth.Identity
	Token    string
}

// IdentityBackend is the stateless provider-specific half of an IdentityClient.
type IdentityBackend interface {
	// Whoami resolves a token to its identity, returning ErrNoSession when it is not live.
	Whoami(ctx context.Context, token string) (domainauth.Identity, error)
	Login(ctx context.Context, creds domainauth.Credentials) (ProviderSession, error)
	Register(ctx context.Context, in domainauth.SignUpInput) (ProviderSession, error)
	Logout(ctx context.Context, token string) error
}

// ProfileStore reads and creates profile records keyed by provider user id.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domainauth.Profile, error)
	CreateProfile(ctx context.Context, p domainauth.Profile) error
}

// RoleMapper derives a role hint from provider claims or traits.
// It returns "" when the claims carry no role information.
type RoleMapper interface {
	Map(claims map[string]any) domainauth.Role
}

// LocalCache is a visitor-scoped durable key/value store. Writers replace a key wholesale.
// Read returns ErrCacheMiss when the key is absent.
type LocalCache interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, blob []byte) error
	Erase(ctx context.Context, key string) error
}

// LocalCacheFactory opens the cache namespace of one visitor.
type LocalCacheFactory interface {
	ForVisitor(visitorID string) LocalCache
}

// ErrCacheMiss reports an absent cache key.
var ErrCacheMiss = errors.New("cache miss")

// Cache keys owned by the storefront components.
const (
	CacheKeyAuth     = "auth"
	CacheKeyCart     = "cart"
	CacheKeyProvider = "provider"
)
