// Package kratos implements the identity backend on top of Ory Kratos native (API) flows.
package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	kratos "github.com/ory/kratos-client-go"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/ports"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultCallTimeout = 3 * time.Second
	passwordMethod     = "password"
)

// ErrKratosUnavailable wraps transport failures and unexpected Kratos responses.
var ErrKratosUnavailable = errors.New("kratos unavailable")

// Options configures the Kratos backend.
type Options struct {
	// PublicURL is the Kratos public API base URL, e.g. http://kratos:4433.
	PublicURL string
	// CallTimeout bounds each Kratos request. Defaults to 3s.
	CallTimeout time.Duration
	// HTTPClient overrides the client used for Kratos calls.
	HTTPClient *http.Client
	// RoleMapper derives a role hint from identity traits and public metadata.
	RoleMapper ports.RoleMapper
	Logger     *slog.Logger
}

// Backend implements ports.IdentityBackend using Kratos session tokens.
type Backend struct {
	client  *kratos.APIClient
	timeout time.Duration
	roles   ports.RoleMapper
	logger  *slog.Logger
}

var _ ports.IdentityBackend = (*Backend)(nil)

// NewBackend creates a Kratos backend.
func NewBackend(opts Options) (*Backend, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.PublicURL), "/")
	if base == "" {
		return nil, errors.New("kratos public url is required")
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	cfg := kratos.NewConfiguration()
	cfg.Servers = []kratos.ServerConfiguration{{URL: base}}
	cfg.HTTPClient = httpClient

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client:  kratos.NewAPIClient(cfg),
		timeout: timeout,
		roles:   opts.RoleMapper,
		logger:  logger.With("component", "kratos_backend"),
	}, nil
}

// Whoami resolves a session token through /sessions/whoami.
func (b *Backend) Whoami(ctx context.Context, token string) (domainauth.Identity, error) {
	if token == "" {
		return domainauth.Identity{}, ports.ErrNoSession
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	session, resp, err := b.client.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return domainauth.Identity{}, ports.ErrNoSession
		}
		return domainauth.Identity{}, unavailable("whoami", resp, err)
	}
	if session == nil || !session.GetActive() {
		return domainauth.Identity{}, ports.ErrNoSession
	}
	return b.identityOf(*session)
}

// Login runs a native login flow with the password method.
func (b *Backend) Login(ctx context.Context, creds domainauth.Credentials) (ports.ProviderSession, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	flow, resp, err := b.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return ports.ProviderSession{}, unavailable("create login flow", resp, err)
	}

	body := kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithPasswordMethod{
		Identifier: strings.TrimSpace(creds.Email),
		Password:   creds.Password,
		Method:     passwordMethod,
	})
	result, resp, err := b.client.FrontendAPI.UpdateLoginFlow(ctx).Flow(flow.Id).UpdateLoginFlowBody(body).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			b.logger.DebugContext(ctx, "kratos rejected login", "messages", flowMessages(err))
			return ports.ProviderSession{}, ports.ErrInvalidCredentials
		}
		return ports.ProviderSession{}, unavailable("update login flow", resp, err)
	}
	return b.providerSession(result.GetSession(), result.GetSessionToken())
}

// Register runs a native registration flow. Kratos signs the new identity in when the
// "session" hook is enabled for registration; otherwise a follow-up login is performed.
func (b *Backend) Register(ctx context.Context, in domainauth.SignUpInput) (ports.ProviderSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	flow, resp, err := b.client.FrontendAPI.CreateNativeRegistrationFlow(callCtx).Execute()
	if err != nil {
		return ports.ProviderSession{}, unavailable("create registration flow", resp, err)
	}

	traits := map[string]interface{}{
		"email": strings.TrimSpace(in.Email),
		"name": map[string]interface{}{
			"first": strings.TrimSpace(in.FirstName),
			"last":  strings.TrimSpace(in.LastName),
		},
	}
	body := kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&kratos.UpdateRegistrationFlowWithPasswordMethod{
		Traits:   traits,
		Password: in.Password,
		Method:   passwordMethod,
	})
	result, resp, err := b.client.FrontendAPI.UpdateRegistrationFlow(callCtx).Flow(flow.Id).UpdateRegistrationFlowBody(body).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			msgs := flowMessages(err)
			for _, m := range msgs {
				if strings.Contains(strings.ToLower(m), "exists already") {
					return ports.ProviderSession{}, ports.ErrAccountExists
				}
			}
			msg := "registration rejected"
			if len(msgs) > 0 {
				msg = msgs[0]
			}
			return ports.ProviderSession{}, apperrors.Validation(msg)
		}
		return ports.ProviderSession{}, unavailable("update registration flow", resp, err)
	}

	if token := result.GetSessionToken(); token != "" {
		return b.providerSession(result.GetSession(), token)
	}
	return b.Login(ctx, domainauth.Credentials{Email: in.Email, Password: in.Password})
}

// Logout revokes a session token. An already revoked token is not an error.
func (b *Backend) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized) {
			return nil
		}
		return unavailable("logout", resp, err)
	}
	return nil
}

func (b *Backend) providerSession(session kratos.Session, token string) (ports.ProviderSession, error) {
	if token == "" {
		return ports.ProviderSession{}, fmt.Errorf("%w: response carried no session token", ErrKratosUnavailable)
	}
	id, err := b.identityOf(session)
	if err != nil {
		return ports.ProviderSession{}, err
	}
	return ports.ProviderSession{Identity: id, Token: token}, nil
}

func (b *Backend) identityOf(session kratos.Session) (domainauth.Identity, error) {
	if session.Identity == nil || session.Identity.Id == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: session has no identity", ErrKratosUnavailable)
	}
	traits, _ := session.Identity.Traits.(map[string]interface{})

	out := domainauth.Identity{
		UserID:    session.Identity.Id,
		Email:     stringTrait(traits, "email"),
		FullName:  fullName(traits),
		ExpiresAt: session.GetExpiresAt(),
	}
	if b.roles != nil {
		out.RoleHint = b.roles.Map(claimsOf(traits, session.Identity.MetadataPublic))
	}
	return out, nil
}

// claimsOf flattens traits and exposes public metadata under "metadata_public".
func claimsOf(traits map[string]interface{}, metadata interface{}) map[string]any {
	claims := make(map[string]any, len(traits)+1)
	for k, v := range traits {
		claims[k] = v
	}
	if metadata != nil {
		claims["metadata_public"] = metadata
	}
	return claims
}

func stringTrait(traits map[string]interface{}, key string) string {
	if s, ok := traits[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func fullName(traits map[string]interface{}) string {
	switch name := traits["name"].(type) {
	case string:
		return strings.TrimSpace(name)
	case map[string]interface{}:
		first, _ := name["first"].(string)
		last, _ := name["last"].(string)
		return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	}
	return ""
}

// flowMessages extracts ui and node message texts from a Kratos error body.
func flowMessages(err error) []string {
	var apiErr *kratos.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	var body struct {
		UI struct {
			Messages []struct {
				Text string `json:"text"`
			} `json:"messages"`
			Nodes []struct {
				Messages []struct {
					Text string `json:"text"`
				} `json:"messages"`
			} `json:"nodes"`
		} `json:"ui"`
	}
	if json.Unmarshal(apiErr.Body(), &body) != nil {
		return nil
	}
	var out []string
	for _, m := range body.UI.Messages {
		out = append(out, m.Text)
	}
	for _, n := range body.UI.Nodes {
		for _, m := range n.Messages {
			out = append(out, m.Text)
		}
	}
	return out
}

func unavailable(op string, resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("%w: %s returned status %d", ErrKratosUnavailable, op, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s: %w", ErrKratosUnavailable, op, err)
}
