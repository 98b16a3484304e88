package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
)

func TestStaticRoleMapper_Map(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "storefront-admins", UserGroup: "storefront-users"}

	tests := []struct {
		name   string
		claims map[string]any
		want   domainauth.Role
	}{
		{"admin wins", map[string]any{"groups": []any{"storefront-users", "storefront-admins"}}, domainauth.RoleAdmin},
		{"user group", map[string]any{"groups": []string{"storefront-users"}}, domainauth.RoleUser},
		{"single string group", map[string]any{"groups": "storefront-admins"}, domainauth.RoleAdmin},
		{"no match", map[string]any{"groups": []any{"other"}}, ""},
		{"no groups claim", map[string]any{"email": "a@example.com"}, ""},
		{"nil claims", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.claims))
		})
	}
}

func TestClaimsRoleMapper_Map(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		claims map[string]any
		want   domainauth.Role
	}{
		{"string trait", "role", map[string]any{"role": "Admin"}, domainauth.RoleAdmin},
		{"nested metadata", "metadata_public.role", map[string]any{"metadata_public": map[string]any{"role": "user"}}, domainauth.RoleUser},
		{"unknown string", "role", map[string]any{"role": "owner"}, ""},
		{"boolean expression", "contains(groups, 'ops')", map[string]any{"groups": []any{"ops"}}, domainauth.RoleAdmin},
		{"false boolean", "contains(groups, 'ops')", map[string]any{"groups": []any{"dev"}}, ""},
		{"list containing admin", "roles", map[string]any{"roles": []any{"user", "admin"}}, domainauth.RoleAdmin},
		{"non-empty list", "roles", map[string]any{"roles": []any{"viewer"}}, domainauth.RoleUser},
		{"missing path", "role", map[string]any{"email": "a@example.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewClaimsRoleMapper(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Map(tt.claims))
		})
	}
}

func TestNewClaimsRoleMapper_Invalid(t *testing.T) {
	_, err := NewClaimsRoleMapper("", nil)
	require.Error(t, err)

	_, err = NewClaimsRoleMapper("role[", nil)
	require.Error(t, err)
}

func TestChain_Map(t *testing.T) {
	claims, err := NewClaimsRoleMapper("role", nil)
	require.NoError(t, err)
	chain := Chain{claims, StaticRoleMapper{AdminGroup: "admins"}}

	assert.Equal(t, domainauth.RoleAdmin, chain.Map(map[string]any{"groups": []any{"admins"}}))
	assert.Equal(t, domainauth.RoleUser, chain.Map(map[string]any{"role": "user", "groups": []any{"admins"}}))
	assert.Equal(t, domainauth.Role(""), chain.Map(map[string]any{}))
}
