// Package route contains the storefront route table and the pure guard decision.
package route

import (
	"strings"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
)

// Landing is the public landing route.
const Landing = "/"

// Requirement is the role a route demands.
type Requirement string

const (
	// RequireNone admits any authenticated session.
	RequireNone Requirement = ""
	RequireUser Requirement = Requirement(domainauth.RoleUser)
	// RequireAdmin admits admin sessions only.
	RequireAdmin Requirement = Requirement(domainauth.RoleAdmin)
)

// Request is built per navigation attempt and consumed by Decide.
type Request struct {
	RequiredRole Requirement
}

// Outcome enumerates the guard results.
type Outcome int

const (
	Render Outcome = iota
	RedirectLanding
	RedirectDefault
	Loading
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case RedirectLanding:
		return "redirect_landing"
	case RedirectDefault:
		return "redirect_default"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// Decision is the guard result. Location is set for redirects.
type Decision struct {
	Outcome  Outcome
	Location string
}

// Decide maps every (state, request) pair to exactly one decision. It never mutates the session.
func Decide(snap domainauth.Snapshot, req Request) Decision {
	switch snap.State {
	case domainauth.StateAuthenticated:
		if req.RequiredRole == RequireNone || Requirement(snap.Session.Role) == req.RequiredRole {
			return Decision{Outcome: Render}
		}
		return Decision{Outcome: RedirectDefault, Location: DefaultView(snap.Session.Role)}
	case domainauth.StateUnauthenticated:
		return Decision{Outcome: RedirectLanding, Location: Landing}
	default:
		// Pending and any unknown state wait for resolution.
		return Decision{Outcome: Loading}
	}
}

// DefaultView is the role-appropriate landing view for an authenticated session.
func DefaultView(role domainauth.Role) string {
	if role == domainauth.RoleAdmin {
		return "/admin"
	}
	return "/dashboard"
}

// Access classifies a route in the table.
type Access int

const (
	Public Access = iota
	Protected
)

// Definition describes one route of the storefront surface.
type Definition struct {
	Path     string
	Access   Access
	Required Requirement
}

// Table is the storefront route surface.
var Table = []Definition{
	{Path: "/", Access: Public},
	{Path: "/login", Access: Public},
	{Path: "/signup", Access: Public},
	{Path: "/dashboard", Access: Protected, Required: RequireNone},
	{Path: "/profile", Access: Protected, Required: RequireNone},
	{Path: "/cart", Access: Protected, Required: RequireNone},
	{Path: "/admin", Access: Protected, Required: RequireAdmin},
}

// Lookup finds the definition for a request path. A single trailing slash is ignored.
func Lookup(path string) (Definition, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	for _, d := range Table {
		if d.Path == path {
			return d, true
		}
	}
	return Definition{}, false
}
