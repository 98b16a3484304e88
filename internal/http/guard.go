package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/route"
)

// GuardConfig tunes the route guard.
type GuardConfig struct {
	// ResolveGrace is how long a protected request may wait for a pending
	// session before the loading view is returned. Zero never waits.
	ResolveGrace time.Duration
	// RefreshAfter is the Refresh header value sent with the loading view.
	RefreshAfter time.Duration
}

// loadingView is returned while the session is still pending.
type loadingView struct {
	View        string                          `json:"view"`
	Placeholder *domainauth.CachedSessionRecord `json:"placeholder,omitempty"`
}

// Guard returns a middleware that admits a view request according to
// route.Decide. It needs the Visitors middleware in front of it. Paths outside
// the route table redirect to the landing page.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	refresh := cfg.RefreshAfter
	if refresh <= 0 {
		refresh = time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			def, ok := route.Lookup(r.URL.Path)
			if !ok {
				http.Redirect(w, r, route.Landing, http.StatusSeeOther)
				return
			}
			v, ok := mustVisitor(w, r)
			if !ok {
				return
			}

			snap := v.Reconciler.Snapshot()
			if def.Access == route.Public {
				next.ServeHTTP(w, r.WithContext(setSnapshotInContext(r.Context(), snap)))
				return
			}

			if snap.State == domainauth.StatePending && cfg.ResolveGrace > 0 {
				ctx, cancel := context.WithTimeout(r.Context(), cfg.ResolveGrace)
				snap, _ = v.Reconciler.AwaitResolved(ctx)
				cancel()
			}

			decision := route.Decide(snap, route.Request{RequiredRole: def.Required})
			switch decision.Outcome {
			case route.Render:
				next.ServeHTTP(w, r.WithContext(setSnapshotInContext(r.Context(), snap)))
			case route.Loading:
				body := loadingView{View: "loading"}
				if rec, ok := v.Reconciler.Placeholder(); ok {
					body.Placeholder = &rec
				}
				w.Header().Set("Refresh", formatSeconds(refresh))
				w.Header().Set("Cache-Control", "no-store")
				WriteJSON(w, http.StatusAccepted, body)
			default:
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			}
		})
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
