package authroles

import (
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/ports"
)

// GroupsClaim is the claim StaticRoleMapper reads group membership from.
const GroupsClaim = "groups"

// StaticRoleMapper maps groups by simple string membership rules.
// It returns an empty role when no configured group matches, leaving the profile store authoritative.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

var _ ports.RoleMapper = StaticRoleMapper{}

func (m StaticRoleMapper) Map(claims map[string]any) domainauth.Role {
	groups := stringSlice(claims[GroupsClaim])
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.UserGroup != "" && g == m.UserGroup {
			return domainauth.RoleUser
		}
	}
	return ""
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}
