package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/target/storefront-api/internal/service"
)

const (
	defaultVisitorCookie = "visitor_id"
	defaultVisitorMaxAge = 30 * 24 * time.Hour
)

// VisitorSource resolves the live state of a visitor.
type VisitorSource interface {
	Visitor(ctx context.Context, visitorID string) (*service.Visitor, error)
}

// VisitorCookieConfig controls the cookie that identifies a browser.
type VisitorCookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

func (c VisitorCookieConfig) withDefaults() VisitorCookieConfig {
	if c.Name == "" {
		c.Name = defaultVisitorCookie
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultVisitorMaxAge
	}
	return c
}

// Visitors returns a middleware that identifies the browser by its visitor
// cookie, issuing a fresh id when the cookie is missing or malformed, and puts
// the visitor's reconciler and cart on the request context.
func Visitors(src VisitorSource, cfg VisitorCookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, fresh := visitorID(r, cfg.Name)
			if fresh {
				logger.DebugContext(r.Context(), "issuing visitor id", "visitor_id", id)
			}
			// Refreshing the cookie on every request keeps active visitors alive.
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.Name,
				Value:    id,
				Path:     "/",
				Domain:   cfg.Domain,
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			v, err := src.Visitor(r.Context(), id)
			if err != nil {
				logger.ErrorContext(r.Context(), "resolving visitor failed", "visitor_id", id, "error", err)
				status := http.StatusInternalServerError
				if errors.Is(err, service.ErrHubClosed) {
					status = http.StatusServiceUnavailable
				}
				WriteError(w, ErrorParams{Code: status, ErrCode: "visitor_unavailable", Err: errors.New("visitor state unavailable")})
				return
			}
			next.ServeHTTP(w, r.WithContext(SetVisitorInContext(r.Context(), v)))
		})
	}
}

func visitorID(r *http.Request, name string) (string, bool) {
	if c, err := r.Cookie(name); err == nil {
		if parsed, perr := uuid.Parse(c.Value); perr == nil {
			return parsed.String(), false
		}
	}
	return uuid.NewString(), true
}

// mustVisitor returns the request's visitor or writes a 500 when the Visitors
// middleware was not installed.
func mustVisitor(w http.ResponseWriter, r *http.Request) (*service.Visitor, bool) {
	v, ok := VisitorFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "visitor_missing",
			Err:     errors.New("visitor middleware not configured"),
		})
	}
	return v, ok
}
