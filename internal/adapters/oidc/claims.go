package oidc

import "strings"

// idFields is the provider-neutral view of identity claims.
type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	name       string
	groups     []string
}

func (f idFields) fullName() string {
	if f.name != "" {
		return f.name
	}
	return strings.TrimSpace(f.givenName + " " + f.familyName)
}

// mapClaims maps standard OIDC claims and the AD/ADFS shape into idFields.
// AD names win when both are present.
func mapClaims(c map[string]any) idFields {
	return idFields{
		userID:     firstNonEmpty(str(c, "samaccountname"), str(c, "sub")),
		email:      firstNonEmpty(str(c, "mail"), str(c, "email")),
		givenName:  firstNonEmpty(str(c, "firstname"), str(c, "given_name")),
		familyName: firstNonEmpty(str(c, "lastname"), str(c, "family_name")),
		name:       str(c, "name"),
		groups:     firstNonEmptySlice(strs(c, "memberof"), strs(c, "groups")),
	}
}

// fillFrom fills missing fields from src without overwriting.
func fillFrom(f *idFields, src idFields) {
	if f.userID == "" {
		f.userID = src.userID
	}
	if f.email == "" {
		f.email = src.email
	}
	if f.givenName == "" {
		f.givenName = src.givenName
	}
	if f.familyName == "" {
		f.familyName = src.familyName
	}
	if f.name == "" {
		f.name = src.name
	}
	if len(f.groups) == 0 {
		f.groups = src.groups
	}
}

func str(c map[string]any, key string) string {
	s, _ := c[key].(string)
	return strings.TrimSpace(s)
}

func strs(c map[string]any, key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(vals ...[]string) []string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
