package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/ports"
)

type roleFunc func(map[string]any) domainauth.Role

func (f roleFunc) Map(claims map[string]any) domainauth.Role { return f(claims) }

const identityJSON = `{
	"id": "id-1",
	"schema_id": "default",
	"schema_url": "http://kratos.test/schemas/default",
	"traits": {"email": "ada@example.com", "name": {"first": "Ada", "last": "Lovelace"}},
	"metadata_public": {"role": "admin"}
}`

const sessionJSON = `{
	"id": "sess-1",
	"active": true,
	"expires_at": "2030-01-01T00:00:00Z",
	"identity": ` + identityJSON + `
}`

func flowJSON(id string) string {
	return `{
		"id": "` + id + `",
		"type": "api",
		"expires_at": "2030-01-01T00:00:00Z",
		"issued_at": "2024-01-01T00:00:00Z",
		"request_url": "http://kratos.test/self-service/api",
		"state": "choose_method",
		"ui": {"action": "http://kratos.test/self-service?flow=` + id + `", "method": "POST", "nodes": []}
	}`
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b, err := NewBackend(Options{
		PublicURL: server.URL,
		RoleMapper: roleFunc(func(claims map[string]any) domainauth.Role {
			meta, _ := claims["metadata_public"].(map[string]interface{})
			role, _ := meta["role"].(string)
			return domainauth.Role(role)
		}),
	})
	require.NoError(t, err)
	return b
}

func TestNewBackend_RequiresURL(t *testing.T) {
	_, err := NewBackend(Options{PublicURL: " "})
	require.Error(t, err)
}

func TestBackend_Whoami(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/whoami", r.URL.Path)
		if r.Header.Get("X-Session-Token") != "tok-1" {
			writeJSON(w, http.StatusUnauthorized, `{"error":{"code":401,"status":"Unauthorized","message":"No valid session"}}`)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON)
	})

	id, err := b.Whoami(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id.UserID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada Lovelace", id.FullName)
	assert.Equal(t, domainauth.RoleAdmin, id.RoleHint)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), id.ExpiresAt.UTC())

	_, err = b.Whoami(context.Background(), "expired")
	assert.ErrorIs(t, err, ports.ErrNoSession)

	_, err = b.Whoami(context.Background(), "")
	assert.ErrorIs(t, err, ports.ErrNoSession)
}

func TestBackend_WhoamiUnavailable(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`)
	})

	_, err := b.Whoami(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKratosUnavailable)
	assert.False(t, errors.Is(err, ports.ErrNoSession))
}

func TestBackend_Login(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/self-service/login/api":
			writeJSON(w, http.StatusOK, flowJSON("login-1"))
		case r.Method == http.MethodPost && r.URL.Path == "/self-service/login":
			assert.Equal(t, "login-1", r.URL.Query().Get("flow"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "password", body["method"])
			if body["password"] != "secret1" {
				writeJSON(w, http.StatusBadRequest, `{"id":"login-1","ui":{"messages":[{"id":4000006,"text":"The provided credentials are invalid.","type":"error"}],"nodes":[]}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"session_token":"tok-1","session":`+sessionJSON+`}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	sess, err := b.Login(context.Background(), domainauth.Credentials{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, "id-1", sess.Identity.UserID)

	_, err = b.Login(context.Background(), domainauth.Credentials{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ports.ErrInvalidCredentials)
}

func TestBackend_Register(t *testing.T) {
	var gotTraits map[string]any
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/self-service/registration/api":
			writeJSON(w, http.StatusOK, flowJSON("reg-1"))
		case r.Method == http.MethodPost && r.URL.Path == "/self-service/registration":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotTraits, _ = body["traits"].(map[string]any)
			if gotTraits["email"] == "taken@example.com" {
				writeJSON(w, http.StatusBadRequest, `{"id":"reg-1","ui":{"messages":[{"id":4000007,"text":"An account with the same identifier (email, phone, username, ...) exists already.","type":"error"}],"nodes":[]}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"identity":`+identityJSON+`,"session_token":"tok-2","session":`+sessionJSON+`}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	sess, err := b.Register(context.Background(), domainauth.SignUpInput{
		Email: "ada@example.com", Password: "secret1", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-2", sess.Token)
	assert.Equal(t, map[string]any{"first": "Ada", "last": "Lovelace"}, gotTraits["name"])

	_, err = b.Register(context.Background(), domainauth.SignUpInput{Email: "taken@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ports.ErrAccountExists)
}

func TestBackend_RegisterValidationMessage(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, flowJSON("reg-1"))
			return
		}
		writeJSON(w, http.StatusBadRequest, `{"id":"reg-1","ui":{"nodes":[{"messages":[{"id":4000005,"text":"The password can not be used because it is too short.","type":"error"}]}]}}`)
	})

	_, err := b.Register(context.Background(), domainauth.SignUpInput{Email: "a@example.com", Password: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "too short")
}

func TestBackend_Logout(t *testing.T) {
	var revoked string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/self-service/logout/api", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["session_token"] == "gone" {
			writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"already revoked"}}`)
			return
		}
		revoked = body["session_token"]
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, b.Logout(context.Background(), "tok-1"))
	assert.Equal(t, "tok-1", revoked)
	assert.NoError(t, b.Logout(context.Background(), "gone"))
	assert.NoError(t, b.Logout(context.Background(), ""))
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ada", fullName(map[string]interface{}{"name": map[string]interface{}{"first": "Ada"}}))
	assert.Equal(t, "Grace Hopper", fullName(map[string]interface{}{"name": " Grace Hopper "}))
	assert.Equal(t, "", fullName(nil))
}
