package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/domain/route"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/service"
)

// AuthHandlers serves the session API of the current visitor.
type AuthHandlers struct {
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// sessionResponse is returned by login and sign-up.
type sessionResponse struct {
	Session  domainauth.Session `json:"session"`
	Redirect string             `json:"redirect"`
}

// statusResponse is returned by the status endpoint.
type statusResponse struct {
	State       domainauth.SessionState         `json:"state"`
	Session     domainauth.Session              `json:"session"`
	Placeholder *domainauth.CachedSessionRecord `json:"placeholder,omitempty"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	var form service.LoginForm
	if !DecodeJSON(w, r, &form) {
		return
	}

	sess, err := v.Reconciler.Login(r.Context(), form.Credentials())
	if err != nil {
		h.logFailure(r, "login", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{Session: sess, Redirect: redirectFor(sess)})
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandlers) SignUp(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	var form service.SignUpForm
	if !DecodeJSON(w, r, &form) {
		return
	}

	sess, err := v.Reconciler.SignUp(r.Context(), form.Input())
	if err != nil {
		h.logFailure(r, "signup", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sessionResponse{Session: sess, Redirect: redirectFor(sess)})
}

// Logout handles POST /api/auth/logout. The local session is always reset; a
// provider sign-out failure is reported as a warning on a successful response.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	resp := map[string]string{"redirect": route.Landing}
	if err := v.Reconciler.Logout(r.Context()); err != nil {
		if !apperrors.IsPartial(err) {
			WriteAppError(w, err)
			return
		}
		resp["warning"] = "Signed out locally; the identity provider could not be reached"
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	v, ok := mustVisitor(w, r)
	if !ok {
		return
	}
	snap := v.Reconciler.Snapshot()
	resp := statusResponse{State: snap.State, Session: snap.Session}
	if rec, ok := v.Reconciler.Placeholder(); ok {
		resp.Placeholder = &rec
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandlers) logFailure(r *http.Request, op string, err error) {
	level := slog.LevelInfo
	if apperrors.IsRemote(err) {
		level = slog.LevelWarn
	}
	h.logger().Log(r.Context(), level, op+" failed", "error", err, "code", apperrors.GetCode(err))
}

func redirectFor(s domainauth.Session) string {
	if !s.Authenticated {
		return route.Landing
	}
	return route.DefaultView(s.Role)
}
