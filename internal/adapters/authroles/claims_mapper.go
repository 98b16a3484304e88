package authroles

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/ports"
)

// ClaimsRoleMapper derives a role hint by evaluating a JMESPath expression against
// provider claims or identity traits. Supported results:
//   - a string naming a role ("admin", "user")
//   - a boolean, where true means admin
//   - a list, which yields admin when it contains "admin" and user when non-empty
//
// Anything else produces no hint.
type ClaimsRoleMapper struct {
	expr   string
	logger *slog.Logger
}

var _ ports.RoleMapper = (*ClaimsRoleMapper)(nil)

// NewClaimsRoleMapper validates expr and returns a mapper for it.
func NewClaimsRoleMapper(expr string, logger *slog.Logger) (*ClaimsRoleMapper, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("role claim expression is required")
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile role claim expression: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimsRoleMapper{expr: expr, logger: logger.With("component", "claims_role_mapper")}, nil
}

func (m *ClaimsRoleMapper) Map(claims map[string]any) domainauth.Role {
	if len(claims) == 0 {
		return ""
	}
	res, err := jmespath.Search(m.expr, claims)
	if err != nil {
		m.logger.Debug("role claim expression failed", "error", err)
		return ""
	}
	return roleFromResult(res)
}

func roleFromResult(res any) domainauth.Role {
	switch v := res.(type) {
	case string:
		r := domainauth.Role(strings.ToLower(strings.TrimSpace(v)))
		if r.Valid() {
			return r
		}
	case bool:
		if v {
			return domainauth.RoleAdmin
		}
	case []any:
		if len(v) == 0 {
			return ""
		}
		for _, item := range v {
			if s, ok := item.(string); ok && domainauth.Role(strings.ToLower(s)) == domainauth.RoleAdmin {
				return domainauth.RoleAdmin
			}
		}
		return domainauth.RoleUser
	}
	return ""
}

// Chain returns the first non-empty role produced by the mappers.
type Chain []ports.RoleMapper

func (c Chain) Map(claims map[string]any) domainauth.Role {
	for _, m := range c {
		if m == nil {
			continue
		}
		if r := m.Map(claims); r != "" {
			return r
		}
	}
	return ""
}
