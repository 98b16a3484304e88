package oidc

// Package oidc provides an identity backend for OAuth2/OIDC providers that allow the
// resource owner password credentials grant.

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/ports"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

// Backend implements ports.IdentityBackend using OIDC discovery and the password grant.
type Backend struct {
	config     *oauth2.Config
	httpClient *http.Client
	roles      ports.RoleMapper
	logger     *slog.Logger

	oidcProvider  *gooidc.Provider
	verifier      *gooidc.IDTokenVerifier
	revocationURL string
}

var _ ports.IdentityBackend = (*Backend)(nil)

// BackendConfig holds configuration for the OIDC backend.
type BackendConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	RoleMapper   ports.RoleMapper
	HTTPClient   *http.Client // Optional, defaults to a 30s client with a cookie jar
	Logger       *slog.Logger
}

// DiscoveryDocument represents the subset of the OIDC discovery document the backend reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JwksURI               string `json:"jwks_uri"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// NewBackend performs discovery and returns a ready backend.
func NewBackend(ctx context.Context, config BackendConfig) (*Backend, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{Timeout: 30 * time.Second, Jar: jar}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var extra DiscoveryDocument
	if claimsErr := op.Claims(&extra); claimsErr != nil {
		return nil, fmt.Errorf("decode discovery document: %w", claimsErr)
	}

	return &Backend{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:    httpClient,
		roles:         config.RoleMapper,
		logger:        logger.With("component", "oidc_backend"),
		oidcProvider:  op,
		verifier:      op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		revocationURL: extra.RevocationEndpoint,
	}, nil
}

// Login exchanges the credentials for tokens with the password grant.
func (b *Backend) Login(ctx context.Context, creds domainauth.Credentials) (ports.ProviderSession, error) {
	ctx = gooidc.ClientContext(ctx, b.httpClient)
	tok, err := b.config.PasswordCredentialsToken(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil &&
			(rErr.Response.StatusCode == http.StatusBadRequest || rErr.Response.StatusCode == http.StatusUnauthorized) {
			return ports.ProviderSession{}, ports.ErrInvalidCredentials
		}
		return ports.ProviderSession{}, fmt.Errorf("password grant: %w", err)
	}

	id, err := b.identity(ctx, tok)
	if err != nil {
		return ports.ProviderSession{}, err
	}
	encoded, err := encodeToken(tok)
	if err != nil {
		return ports.ProviderSession{}, err
	}
	return ports.ProviderSession{Identity: id, Token: encoded}, nil
}

// Register is not available through OAuth2; accounts are provisioned at the provider.
func (b *Backend) Register(context.Context, domainauth.SignUpInput) (ports.ProviderSession, error) {
	return ports.ProviderSession{}, ports.ErrSignUpUnsupported
}

// Whoami resolves the stored token, refreshing it when the access token has expired.
func (b *Backend) Whoami(ctx context.Context, token string) (domainauth.Identity, error) {
	tok, err := decodeToken(token)
	if err != nil {
		return domainauth.Identity{}, ports.ErrNoSession
	}
	ctx = gooidc.ClientContext(ctx, b.httpClient)

	fresh, err := b.config.TokenSource(ctx, tok).Token()
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: %w", ports.ErrNoSession, err)
	}
	id, err := b.identity(ctx, fresh)
	if err != nil {
		if isUnauthorized(err) {
			return domainauth.Identity{}, fmt.Errorf("%w: %w", ports.ErrNoSession, err)
		}
		return domainauth.Identity{}, err
	}
	return id, nil
}

// Logout revokes the refresh token when the provider advertises a revocation endpoint.
func (b *Backend) Logout(ctx context.Context, token string) error {
	tok, err := decodeToken(token)
	if err != nil || b.revocationURL == "" {
		return nil
	}
	value, hint := tok.RefreshToken, "refresh_token"
	if value == "" {
		value, hint = tok.AccessToken, "access_token"
	}

	form := url.Values{"token": {value}, "token_type_hint": {hint}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(b.config.ClientID), url.QueryEscape(b.config.ClientSecret))

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (b *Backend) identity(ctx context.Context, tok *oauth2.Token) (domainauth.Identity, error) {
	claims, err := b.extractFromIDToken(ctx, tok)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}
	f := mapClaims(claims)

	if (f.userID == "" || f.email == "") && b.oidcProvider.UserInfoEndpoint() != "" {
		uiClaims, uiErr := b.userInfoClaims(ctx, tok)
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		fillFrom(&f, mapClaims(uiClaims))
		for k, v := range uiClaims {
			if _, ok := claims[k]; !ok {
				claims[k] = v
			}
		}
	}
	if f.userID == "" {
		return domainauth.Identity{}, errors.New("provider returned no subject")
	}

	expiresAt := time.Now().Add(time.Hour)
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry
	}
	id := domainauth.Identity{
		UserID:    f.userID,
		Email:     f.email,
		FullName:  f.fullName(),
		ExpiresAt: expiresAt,
	}
	if b.roles != nil {
		if _, ok := claims["groups"]; !ok && len(f.groups) > 0 {
			claims["groups"] = f.groups
		}
		id.RoleHint = b.roles.Map(claims)
	}
	return id, nil
}

func (b *Backend) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	claims := map[string]any{}
	if !b.hasOpenIDScope() {
		return claims, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, err
	}
	idTok, err := b.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return claims, nil
}

func (b *Backend) userInfoClaims(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	ui, err := b.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	claims := map[string]any{}
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return claims, nil
}

// hasOpenIDScope reports whether the configured scopes include "openid".
func (b *Backend) hasOpenIDScope() bool {
	for _, sc := range b.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

// go-oidc reports non-200 userinfo responses as "<status>: <body>".
func isUnauthorized(err error) bool {
	return strings.Contains(err.Error(), "401 Unauthorized")
}

// storedToken is the persisted form of an oauth2 token.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
}

func encodeToken(tok *oauth2.Token) (string, error) {
	st := storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		st.IDToken = raw
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(s string) (*oauth2.Token, error) {
	if s == "" {
		return nil, ports.ErrNoSession
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if st.AccessToken == "" {
		return nil, errors.New("decode token: missing access token")
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		Expiry:       st.Expiry,
	}
	if st.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": st.IDToken})
	}
	return tok, nil
}
