// Package mocks provides gomock implementations of the storefront ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// Hand-written fakes with richer behavior live in the auth subpackage.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileStore(ctrl)
//	profiles.EXPECT().GetProfile(gomock.Any(), "u-1").Return(profile, nil)
package mocks

// Generate mocks for the provider-facing and persistence ports:
// IdentityBackend (Whoami, Login, Register, Logout), ProfileStore (GetProfile, CreateProfile)
// and RoleMapper (Map).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/storefront-api/internal/ports IdentityBackend,ProfileStore,RoleMapper
