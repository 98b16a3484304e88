package cart

import (
	"fmt"
	"strings"
)

// LogoutPolicy decides what happens to the cart when the visitor signs out.
type LogoutPolicy string

const (
	// RetainOnLogout keeps the cart; it is not identity scoped.
	RetainOnLogout LogoutPolicy = "retain"
	// ClearOnLogout empties the cart together with the session.
	ClearOnLogout LogoutPolicy = "clear"
)

// ParseLogoutPolicy accepts "retain" or "clear" (case-insensitive). Empty yields RetainOnLogout.
func ParseLogoutPolicy(s string) (LogoutPolicy, error) {
	switch LogoutPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetainOnLogout:
		return RetainOnLogout, nil
	case ClearOnLogout:
		return ClearOnLogout, nil
	default:
		return "", fmt.Errorf("unknown cart logout policy %q", s)
	}
}

// UnmarshalText lets env/config decoders parse the policy directly.
func (p *LogoutPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseLogoutPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
