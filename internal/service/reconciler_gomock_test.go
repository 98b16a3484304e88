package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/cart"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/mocks"
	authmocks "github.com/target/storefront-api/internal/mocks/auth"
)

func newMockedReconciler(t *testing.T, profiles *mocks.MockProfileStore, ident domainauth.Identity) *SessionReconciler {
	t.Helper()
	cache := authmocks.NewMemoryCache()
	rec := NewSessionReconciler(SessionReconcilerOptions{
		Deps: ReconcilerDeps{
			Identity: &authmocks.FakeIdentityClient{
				CurrentSessionFunc: func(context.Context) (*domainauth.Identity, error) { return &ident, nil },
			},
			Profiles: profiles,
			Cache:    cache,
		},
		Cart:   NewCartStore(CartStoreOptions{Cache: cache}),
		Config: ReconcilerConfig{CartPolicy: cart.RetainOnLogout},
	})
	t.Cleanup(rec.Close)
	return rec
}

func TestAuthoritative_ProfileStoreInteractions(t *testing.T) {
	dave := domainauth.Identity{UserID: "u-dave", Email: "dave@example.com", FullName: "Dave"}

	tests := []struct {
		name      string
		setup     func(m *mocks.MockProfileStore)
		wantState domainauth.SessionState
		wantRole  domainauth.Role
	}{
		{
			name: "existing profile is used as is",
			setup: func(m *mocks.MockProfileStore) {
				m.EXPECT().GetProfile(gomock.Any(), "u-dave").
					Return(domainauth.Profile{ID: "u-dave", Email: "dave@example.com", Role: domainauth.RoleAdmin}, nil)
				m.EXPECT().CreateProfile(gomock.Any(), gomock.Any()).Times(0)
			},
			wantState: domainauth.StateAuthenticated,
			wantRole:  domainauth.RoleAdmin,
		},
		{
			name: "missing profile is provisioned as user",
			setup: func(m *mocks.MockProfileStore) {
				m.EXPECT().GetProfile(gomock.Any(), "u-dave").Return(domainauth.Profile{}, apperrors.NotFound("profile not found"))
				m.EXPECT().CreateProfile(gomock.Any(), domainauth.Profile{
					ID: "u-dave", Email: "dave@example.com", FullName: "Dave", Role: domainauth.RoleUser,
				}).Return(nil).Times(1)
			},
			wantState: domainauth.StateAuthenticated,
			wantRole:  domainauth.RoleUser,
		},
		{
			name: "concurrent provisioning conflict is tolerated",
			setup: func(m *mocks.MockProfileStore) {
				m.EXPECT().GetProfile(gomock.Any(), "u-dave").Return(domainauth.Profile{}, apperrors.NotFound("profile not found"))
				m.EXPECT().CreateProfile(gomock.Any(), gomock.Any()).Return(apperrors.Conflict("profile exists"))
			},
			wantState: domainauth.StateAuthenticated,
			wantRole:  domainauth.RoleUser,
		},
		{
			name: "provisioning failure resolves unauthenticated",
			setup: func(m *mocks.MockProfileStore) {
				m.EXPECT().GetProfile(gomock.Any(), "u-dave").Return(domainauth.Profile{}, apperrors.NotFound("profile not found"))
				m.EXPECT().CreateProfile(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
			},
			wantState: domainauth.StateUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			profiles := mocks.NewMockProfileStore(ctrl)
			tt.setup(profiles)

			snap := newMockedReconciler(t, profiles, dave).ResolveInitialSession(context.Background())

			require.Equal(t, tt.wantState, snap.State)
			if tt.wantState == domainauth.StateAuthenticated {
				assert.Equal(t, tt.wantRole, snap.Session.Role)
				assert.Equal(t, "u-dave", snap.Session.UserID)
			}
		})
	}
}
