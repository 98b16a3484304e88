package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for the visitor cookie.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	VisitorCookieName   string        `env:"VISITOR_COOKIE_NAME"    envDefault:"visitor_id"`
	VisitorCookieSecure bool          `env:"VISITOR_COOKIE_SECURE"  envDefault:"false"`
	VisitorCookieMaxAge time.Duration `env:"VISITOR_COOKIE_MAX_AGE" envDefault:"720h"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = normalizeCookieDomain(h.CookieDomain)
	if strings.TrimSpace(h.VisitorCookieName) == "" {
		h.VisitorCookieName = "visitor_id"
	}
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// normalizeCookieDomain lowercases the domain and drops it when browsers would
// reject it: a bare public suffix such as "com" or "co.uk".
func normalizeCookieDomain(domain string) string {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || d == "localhost" {
		return d
	}
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d {
		return ""
	}
	return d
}
