package auth

// Package auth contains domain-level types for storefront sessions and identities.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence in the local cache and profile store.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole normalises a stored role string. Unknown or empty values yield RoleUser,
// matching the profile store default.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Identity represents the authenticated principal returned by an identity provider.
// Adapters map provider-specific claims/traits into this shape.
type Identity struct {
	UserID    string // stable provider user identifier
	Email     string
	FullName  string
	RoleHint  Role // optional role carried by the provider (claims, traits); empty when unknown
	ExpiresAt time.Time
}

// Session is the reconciled view of the visitor's authentication.
// Authenticated implies UserID and Role are both non-empty.
type Session struct {
	UserID        string `json:"user_id,omitempty"`
	DisplayName   string `json:"display_name"`
	Role          Role   `json:"role,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// Anonymous returns the unauthenticated default session.
func Anonymous() Session { return Session{} }

// NewSession builds an authenticated session. A blank role falls back to RoleUser.
func NewSession(userID, displayName string, role Role) Session {
	if !role.Valid() {
		role = RoleUser
	}
	return Session{
		UserID:        userID,
		DisplayName:   displayName,
		Role:          role,
		Authenticated: true,
	}
}

// Valid reports whether the session satisfies the authenticated invariant.
func (s Session) Valid() bool {
	if !s.Authenticated {
		return true
	}
	return s.UserID != "" && s.Role != ""
}

// HasRole reports whether the session is authenticated with the given role.
func (s Session) HasRole(r Role) bool { return s.Authenticated && s.Role == r }

// SessionState is the reconciler's lifecycle state.
type SessionState string

const (
	StatePending         SessionState = "pending"
	StateAuthenticated   SessionState = "authenticated"
	StateUnauthenticated SessionState = "unauthenticated"
)

// Snapshot is a consistent read of the reconciler state.
type Snapshot struct {
	State   SessionState `json:"state"`
	Session Session      `json:"session"`
}

// PendingSnapshot is the state before initial resolution completes.
func PendingSnapshot() Snapshot {
	return Snapshot{State: StatePending, Session: Anonymous()}
}

// SnapshotOf derives the terminal snapshot for a session.
func SnapshotOf(s Session) Snapshot {
	if s.Authenticated {
		return Snapshot{State: StateAuthenticated, Session: s}
	}
	return Snapshot{State: StateUnauthenticated, Session: Anonymous()}
}

// CachedSessionRecord is the durable form of Session kept under the "auth" cache key.
// It is an optimistic placeholder only; the provider answer always wins.
type CachedSessionRecord struct {
	User            string `json:"user"`
	Role            Role   `json:"role"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	ProviderUserID  string `json:"providerUserId,omitempty"`
}

// RecordOf converts a session into its cached form.
func RecordOf(s Session) CachedSessionRecord {
	return CachedSessionRecord{
		User:            s.DisplayName,
		Role:            s.Role,
		IsAuthenticated: s.Authenticated,
		ProviderUserID:  s.UserID,
	}
}

// Session converts the record back into a session. Records that break the
// authenticated invariant decode as anonymous.
func (r CachedSessionRecord) Session() Session {
	if !r.IsAuthenticated || r.ProviderUserID == "" {
		return Anonymous()
	}
	return NewSession(r.ProviderUserID, r.User, ParseRole(string(r.Role)))
}

// ProviderEventKind classifies identity provider session transitions.
type ProviderEventKind string

const (
	EventSessionActive ProviderEventKind = "session_active"
	EventSessionEnded  ProviderEventKind = "session_ended"
)

// ProviderEvent is a session transition pushed by the identity provider client.
type ProviderEvent struct {
	Kind     ProviderEventKind
	Identity Identity // set for EventSessionActive
}

// Credentials carries a password sign-in request.
type Credentials struct {
	Email    string
	Password string
}

// SignUpInput carries an account registration request.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// FullName joins first and last name the way the profile record stores it.
func (in SignUpInput) FullName() string {
	return strings.TrimSpace(in.FirstName + " " + in.LastName)
}

// Profile is the profile store record keyed by provider user id.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
