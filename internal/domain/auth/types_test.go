package auth

import (
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":  RoleAdmin,
		" ADMIN": RoleAdmin,
		"user":   RoleUser,
		"":       RoleUser,
		"guest":  RoleUser,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSession_DefaultsRole(t *testing.T) {
	s := NewSession("u-1", "u@example.com", "")
	if s.Role != RoleUser || !s.Authenticated {
		t.Fatalf("unexpected session: %+v", s)
	}
	if !s.Valid() {
		t.Fatalf("expected valid session")
	}
}

func TestSession_Valid(t *testing.T) {
	if !Anonymous().Valid() {
		t.Fatalf("anonymous session must be valid")
	}
	if (Session{Authenticated: true, Role: RoleUser}).Valid() {
		t.Fatalf("authenticated session without user id must be invalid")
	}
}

func TestCachedSessionRecord_RoundTrip(t *testing.T) {
	s := NewSession("u-1", "u@example.com", RoleAdmin)
	if got := RecordOf(s).Session(); got != s {
		t.Fatalf("round trip mismatch: %+v != %+v", got, s)
	}
	if got := RecordOf(Anonymous()).Session(); got != Anonymous() {
		t.Fatalf("anonymous round trip mismatch: %+v", got)
	}
}

func TestCachedSessionRecord_MissingUserIDIsAnonymous(t *testing.T) {
	rec := CachedSessionRecord{User: "x@example.com", Role: RoleUser, IsAuthenticated: true}
	if rec.Session().Authenticated {
		t.Fatalf("record without provider user id must not authenticate")
	}
}

func TestSnapshotOf(t *testing.T) {
	if SnapshotOf(Anonymous()).State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated")
	}
	if SnapshotOf(NewSession("u", "d", RoleUser)).State != StateAuthenticated {
		t.Fatalf("expected authenticated")
	}
	if PendingSnapshot().State != StatePending {
		t.Fatalf("expected pending")
	}
}

func TestSignUpInput_FullName(t *testing.T) {
	if got := (SignUpInput{FirstName: "Ada", LastName: ""}).FullName(); got != "Ada" {
		t.Fatalf("FullName = %q", got)
	}
	if got := (SignUpInput{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Fatalf("FullName = %q", got)
	}
}
