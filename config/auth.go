package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
)

// AuthMode represents the identity backend the storefront signs visitors in with.
type AuthMode string

const (
	// AuthModeKratos uses Ory Kratos native flows.
	AuthModeKratos AuthMode = "kratos"
	// AuthModeOAuth uses an OIDC provider with the password grant.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses seeded in-memory accounts (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "kratos", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: kratos, oauth, mock)", v)
	}
}

// KratosConfig contains Ory Kratos configuration.
type KratosConfig struct {
	PublicURL   string        `env:"PUBLIC_URL"   envDefault:"http://localhost:4433"`
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"3s"`
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"storefront"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevUser is a seeded mock-mode account written as
// "email:password[:role[:full name]]".
type DevUser struct {
	Email    string
	Password string
	Role     domainauth.Role
	FullName string
}

// UnmarshalText implements encoding.TextUnmarshaler for DevUser.
func (u *DevUser) UnmarshalText(text []byte) error {
	parts := strings.SplitN(strings.TrimSpace(string(text)), ":", 4)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid dev user %q (want email:password[:role[:full name]])", string(text))
	}
	*u = DevUser{Email: strings.ToLower(parts[0]), Password: parts[1]}
	if len(parts) > 2 && parts[2] != "" {
		role := domainauth.Role(strings.ToLower(parts[2]))
		if !role.Valid() {
			return fmt.Errorf("invalid dev user role %q", parts[2])
		}
		u.Role = role
	}
	if len(parts) > 3 {
		u.FullName = strings.TrimSpace(parts[3])
	}
	return nil
}

// DevAuthConfig controls mock/dev authentication.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Secret          string        `env:"SECRET"           envDefault:"storefront-dev-secret-change-me"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
	Users           []DevUser     `env:"USERS"            envDefault:"dev@example.com:devpass1:user:Dev User;admin@example.com:adminpass1:admin:Dev Admin" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"kratos"`

	Kratos  KratosConfig  `envPrefix:"KRATOS_"`
	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// RoleClaimExpr is a JMESPath expression evaluated against provider claims
	// or traits that yields "admin" or "user". Optional.
	RoleClaimExpr string `env:"ROLE_CLAIM_EXPR"`

	// AdminGroup and UserGroup map the "groups" claim onto roles. Optional.
	AdminGroup string `env:"ADMIN_GROUP"`
	UserGroup  string `env:"USER_GROUP"`

	// SessionPollInterval is how often a subscribed identity client checks
	// that the provider session is still live.
	SessionPollInterval time.Duration `env:"SESSION_POLL_INTERVAL" envDefault:"30s"`
}

const minSessionPollInterval = time.Second

// Sanitize trims values and clamps the poll interval.
func (c *AuthConfig) Sanitize() {
	c.Kratos.PublicURL = strings.TrimRight(strings.TrimSpace(c.Kratos.PublicURL), "/")
	c.OAuth.DiscoveryURL = strings.TrimSpace(c.OAuth.DiscoveryURL)
	c.RoleClaimExpr = strings.TrimSpace(c.RoleClaimExpr)
	c.AdminGroup = strings.TrimSpace(c.AdminGroup)
	c.UserGroup = strings.TrimSpace(c.UserGroup)
	if c.SessionPollInterval < minSessionPollInterval {
		c.SessionPollInterval = minSessionPollInterval
	}
}

// Validate reports settings the selected mode cannot start without.
func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeKratos:
		if c.Kratos.PublicURL == "" {
			return errors.New("KRATOS_PUBLIC_URL is required when AUTH_MODE=kratos")
		}
	case AuthModeOAuth:
		var missing []string
		if c.OAuth.ClientID == "" {
			missing = append(missing, "OAUTH_CLIENT_ID")
		}
		if c.OAuth.ClientSecret == "" {
			missing = append(missing, "OAUTH_CLIENT_SECRET")
		}
		if c.OAuth.DiscoveryURL == "" {
			missing = append(missing, "OAUTH_DISCOVERY_URL")
		}
		if len(missing) > 0 {
			return fmt.Errorf("AUTH_MODE=oauth requires %s", strings.Join(missing, ", "))
		}
	case AuthModeMock:
		if len(c.DevAuth.Secret) < 16 {
			return errors.New("DEV_AUTH_SECRET must be at least 16 bytes")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Mode)
	}
	return nil
}
