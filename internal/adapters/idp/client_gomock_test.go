package idp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/mocks"
	mockauth "github.com/target/storefront-api/internal/mocks/auth"
	"github.com/target/storefront-api/internal/ports"
	"go.uber.org/mock/gomock"
)

func newMockedClient(t *testing.T) (*Client, *mocks.MockIdentityBackend, *mockauth.MemoryCache) {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockIdentityBackend(ctrl)
	cache := mockauth.NewMemoryCache()
	c, err := NewClient(Options{Backend: backend, Cache: cache})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, backend, cache
}

func TestClient_SignOutRevokesStoredToken(t *testing.T) {
	ctx := context.Background()
	c, backend, cache := newMockedClient(t)

	creds := domainauth.Credentials{Email: "ada@example.com", Password: "secret1"}
	gomock.InOrder(
		backend.EXPECT().Login(gomock.Any(), creds).
			Return(ports.ProviderSession{Identity: ada.Identity, Token: "tok-1"}, nil),
		backend.EXPECT().Logout(gomock.Any(), "tok-1").Return(nil),
	)

	id, err := c.SignIn(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)

	require.NoError(t, c.SignOut(ctx))
	_, err = cache.Read(ctx, ports.CacheKeyProvider)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestClient_SignOutReportsBackendFailure(t *testing.T) {
	ctx := context.Background()
	c, backend, cache := newMockedClient(t)

	backend.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(ports.ProviderSession{Identity: ada.Identity, Token: "tok-1"}, nil)
	backend.EXPECT().Logout(gomock.Any(), "tok-1").Return(errors.New("upstream down"))

	_, err := c.SignIn(ctx, domainauth.Credentials{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	err = c.SignOut(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	// The token is gone even though the backend refused.
	_, err = cache.Read(ctx, ports.CacheKeyProvider)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestClient_CurrentSessionDropsDeadToken(t *testing.T) {
	ctx := context.Background()
	c, backend, cache := newMockedClient(t)

	backend.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(ports.ProviderSession{Identity: ada.Identity, Token: "tok-1"}, nil)
	backend.EXPECT().Whoami(gomock.Any(), "tok-1").Return(domainauth.Identity{}, ports.ErrNoSession)

	_, err := c.SignIn(ctx, domainauth.Credentials{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	id, err := c.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = cache.Read(ctx, ports.CacheKeyProvider)
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestClient_CurrentSessionSurfacesTransientErrors(t *testing.T) {
	ctx := context.Background()
	c, backend, cache := newMockedClient(t)

	backend.EXPECT().Login(gomock.Any(), gomock.Any()).
		Return(ports.ProviderSession{Identity: ada.Identity, Token: "tok-1"}, nil)
	backend.EXPECT().Whoami(gomock.Any(), "tok-1").Return(domainauth.Identity{}, errors.New("timeout"))

	_, err := c.SignIn(ctx, domainauth.Credentials{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = c.CurrentSession(ctx)
	require.Error(t, err)

	// A transient failure must not discard the token.
	_, err = cache.Read(ctx, ports.CacheKeyProvider)
	assert.NoError(t, err)
}
