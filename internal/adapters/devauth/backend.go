package devauth

// Package devauth provides a config-driven identity backend for local development.
// Accounts live in memory and sessions are HS256 tokens signed with a local secret.

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/ports"
)

const defaultSessionDuration = 8 * time.Hour

// User is a seeded development account.
type User struct {
	ID       string
	Email    string
	Password string
	FullName string
	Role     domainauth.Role // carried as the "role" claim; empty for no hint
}

// Config controls the dev backend behavior. Secret is required.
type Config struct {
	Secret          []byte
	Users           []User
	SessionDuration time.Duration // default 8h when zero
	// Now overrides the clock used for issuing and validating tokens.
	Now func() time.Time
}

// Backend implements ports.IdentityBackend without any external service.
type Backend struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	byEmail map[string]*User
	byID    map[string]*User
	revoked map[string]time.Time // token id -> expiry
}

var _ ports.IdentityBackend = (*Backend)(nil)

// sessionClaims is the payload of a dev session token.
type sessionClaims struct {
	Email string          `json:"email"`
	Name  string          `json:"name,omitempty"`
	Role  domainauth.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewBackend constructs a dev backend from Config.
func NewBackend(cfg Config) (*Backend, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("dev auth: secret must be at least 16 bytes")
	}
	dur := cfg.SessionDuration
	if dur <= 0 {
		dur = defaultSessionDuration
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	b := &Backend{
		secret:   append([]byte(nil), cfg.Secret...),
		duration: dur,
		now:      now,
		byEmail:  make(map[string]*User),
		byID:     make(map[string]*User),
		revoked:  make(map[string]time.Time),
	}
	for _, u := range cfg.Users {
		if _, err := b.addUser(u); err != nil {
			return nil, fmt.Errorf("dev auth: seed %s: %w", u.Email, err)
		}
	}
	return b, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) addUser(u User) (*User, error) {
	u.Email = normalizeEmail(u.Email)
	if u.Email == "" || u.Password == "" {
		return nil, errors.New("email and password are required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byEmail[u.Email]; ok {
		return nil, ports.ErrAccountExists
	}
	stored := u
	b.byEmail[u.Email] = &stored
	b.byID[u.ID] = &stored
	return &stored, nil
}

// Login verifies the password of a seeded or registered account and mints a session token.
func (b *Backend) Login(_ context.Context, creds domainauth.Credentials) (ports.ProviderSession, error) {
	b.mu.RLock()
	u, ok := b.byEmail[normalizeEmail(creds.Email)]
	b.mu.RUnlock()
	if !ok || subtle.ConstantTimeCompare([]byte(u.Password), []byte(creds.Password)) != 1 {
		return ports.ProviderSession{}, ports.ErrInvalidCredentials
	}
	return b.issue(*u)
}

// Register creates an in-memory account and signs it in.
func (b *Backend) Register(_ context.Context, in domainauth.SignUpInput) (ports.ProviderSession, error) {
	u, err := b.addUser(User{Email: in.Email, Password: in.Password, FullName: in.FullName()})
	if err != nil {
		return ports.ProviderSession{}, err
	}
	return b.issue(*u)
}

// Whoami validates the token signature, expiry and revocation.
func (b *Backend) Whoami(_ context.Context, token string) (domainauth.Identity, error) {
	claims, err := b.parse(token)
	if err != nil {
		return domainauth.Identity{}, err
	}
	b.mu.RLock()
	_, revoked := b.revoked[claims.ID]
	u, exists := b.byID[claims.Subject]
	b.mu.RUnlock()
	if revoked || !exists {
		return domainauth.Identity{}, ports.ErrNoSession
	}
	return identityOf(*u, claims.ExpiresAt.Time), nil
}

// Logout revokes the token. Unknown or expired tokens are already signed out.
func (b *Backend) Logout(_ context.Context, token string) error {
	claims, err := b.parse(token)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[claims.ID] = claims.ExpiresAt.Time
	now := b.now()
	for id, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, id)
		}
	}
	return nil
}

func (b *Backend) issue(u User) (ports.ProviderSession, error) {
	now := b.now()
	exp := now.Add(b.duration)
	claims := sessionClaims{
		Email: u.Email,
		Name:  u.FullName,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return ports.ProviderSession{}, fmt.Errorf("sign dev session: %w", err)
	}
	return ports.ProviderSession{Identity: identityOf(u, exp), Token: signed}, nil
}

func (b *Backend) parse(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, ports.ErrNoSession
	}
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrNoSession, err)
	}
	return claims, nil
}

func identityOf(u User, exp time.Time) domainauth.Identity {
	return domainauth.Identity{
		UserID:    u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		RoleHint:  u.Role,
		ExpiresAt: exp,
	}
}
