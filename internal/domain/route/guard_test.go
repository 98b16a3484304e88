package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
)

func snapshots() map[string]domainauth.Snapshot {
	return map[string]domainauth.Snapshot{
		"pending":         domainauth.PendingSnapshot(),
		"unauthenticated": domainauth.SnapshotOf(domainauth.Anonymous()),
		"user":            domainauth.SnapshotOf(domainauth.NewSession("u-1", "u@example.com", domainauth.RoleUser)),
		"admin":           domainauth.SnapshotOf(domainauth.NewSession("a-1", "a@example.com", domainauth.RoleAdmin)),
	}
}

func TestDecide_Total(t *testing.T) {
	reqs := []Requirement{RequireNone, RequireUser, RequireAdmin}
	valid := map[Outcome]bool{Render: true, RedirectLanding: true, RedirectDefault: true, Loading: true}

	for name, snap := range snapshots() {
		for _, r := range reqs {
			d := Decide(snap, Request{RequiredRole: r})
			assert.True(t, valid[d.Outcome], "%s/%q produced %v", name, r, d.Outcome)
			switch d.Outcome {
			case RedirectLanding, RedirectDefault:
				assert.NotEmpty(t, d.Location, "%s/%q redirect without location", name, r)
			default:
				assert.Empty(t, d.Location)
			}
		}
	}
}

func TestDecide_Table(t *testing.T) {
	s := snapshots()
	tests := []struct {
		name string
		snap domainauth.Snapshot
		req  Requirement
		want Decision
	}{
		{"pending renders loading", s["pending"], RequireAdmin, Decision{Outcome: Loading}},
		{"pending no role renders loading", s["pending"], RequireNone, Decision{Outcome: Loading}},
		{"unauthenticated admin route goes to landing", s["unauthenticated"], RequireAdmin, Decision{Outcome: RedirectLanding, Location: "/"}},
		{"unauthenticated any route goes to landing", s["unauthenticated"], RequireNone, Decision{Outcome: RedirectLanding, Location: "/"}},
		{"user no role renders", s["user"], RequireNone, Decision{Outcome: Render}},
		{"user user route renders", s["user"], RequireUser, Decision{Outcome: Render}},
		{"user admin route goes to dashboard", s["user"], RequireAdmin, Decision{Outcome: RedirectDefault, Location: "/dashboard"}},
		{"admin admin route renders", s["admin"], RequireAdmin, Decision{Outcome: Render}},
		{"admin user route goes to admin", s["admin"], RequireUser, Decision{Outcome: RedirectDefault, Location: "/admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.snap, Request{RequiredRole: tt.req}))
		})
	}
}

func TestLookup(t *testing.T) {
	d, ok := Lookup("/admin/")
	require.True(t, ok)
	assert.Equal(t, RequireAdmin, d.Required)
	assert.Equal(t, Protected, d.Access)

	d, ok = Lookup("/signup")
	require.True(t, ok)
	assert.Equal(t, Public, d.Access)

	_, ok = Lookup("/nope")
	assert.False(t, ok)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "redirect_default", RedirectDefault.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
