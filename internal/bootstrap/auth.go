package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/target/storefront-api/config"
	"github.com/target/storefront-api/internal/adapters/authroles"
	"github.com/target/storefront-api/internal/adapters/devauth"
	"github.com/target/storefront-api/internal/adapters/kratos"
	"github.com/target/storefront-api/internal/adapters/oidc"
	"github.com/target/storefront-api/internal/ports"
)

// AuthConfig contains configuration for the identity backend.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildIdentityBackend creates the identity backend for the configured auth mode.
//
//nolint:ireturn // the backend is chosen at runtime from the auth mode.
func BuildIdentityBackend(ctx context.Context, cfg AuthConfig) (ports.IdentityBackend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roles, err := BuildRoleMapper(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Auth.Mode {
	case config.AuthModeKratos:
		backend, kerr := kratos.NewBackend(kratos.Options{
			PublicURL:   cfg.Auth.Kratos.PublicURL,
			CallTimeout: cfg.Auth.Kratos.CallTimeout,
			RoleMapper:  roles,
			Logger:      logger,
		})
		if kerr != nil {
			return nil, fmt.Errorf("build kratos backend: %w", kerr)
		}
		return backend, nil

	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		backend, oerr := oidc.NewBackend(ctx, oidc.BackendConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			RoleMapper:   roles,
			Logger:       logger,
		})
		if oerr != nil {
			return nil, fmt.Errorf("build oidc backend: %w", oerr)
		}
		return backend, nil

	case config.AuthModeMock:
		backend, derr := devauth.NewBackend(devauth.Config{
			Secret:          []byte(cfg.Auth.DevAuth.Secret),
			Users:           devUsers(cfg.Auth.DevAuth.Users),
			SessionDuration: cfg.Auth.DevAuth.SessionDuration,
		})
		if derr != nil {
			return nil, fmt.Errorf("build dev auth backend: %w", derr)
		}
		logger.Warn("dev auth enabled; do not use in production", "seeded_users", len(cfg.Auth.DevAuth.Users))
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// BuildRoleMapper chains the optional claims expression ahead of the group mapping.
func BuildRoleMapper(cfg config.AuthConfig, logger *slog.Logger) (authroles.Chain, error) {
	var chain authroles.Chain
	if strings.TrimSpace(cfg.RoleClaimExpr) != "" {
		claims, err := authroles.NewClaimsRoleMapper(cfg.RoleClaimExpr, logger)
		if err != nil {
			return nil, fmt.Errorf("build role mapper: %w", err)
		}
		chain = append(chain, claims)
	}
	return append(chain, authroles.StaticRoleMapper{
		AdminGroup: cfg.AdminGroup,
		UserGroup:  cfg.UserGroup,
	}), nil
}

// devUsers seeds accounts with ids derived from their email so profiles
// survive restarts.
func devUsers(users []config.DevUser) []devauth.User {
	out := make([]devauth.User, 0, len(users))
	for _, u := range users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		out = append(out, devauth.User{
			ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String(),
			Email:    email,
			Password: u.Password,
			FullName: u.FullName,
			Role:     u.Role,
		})
	}
	return out
}
