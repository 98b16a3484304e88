package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/target/storefront-api/internal/observability/metrics"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Visitors  VisitorSource
	Config    RouterConfig
	Telemetry RouterTelemetry
}

// RouterConfig groups the HTTP behaviour knobs.
type RouterConfig struct {
	Cookie VisitorCookieConfig
	Guard  GuardConfig
}

// RouterTelemetry carries the optional logger and metrics gatherer.
type RouterTelemetry struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer // Optional: exposes GET /metrics when set
}

// NewRouter creates the storefront HTTP handler.
func NewRouter(services RouterServices) http.Handler {
	if services.Visitors == nil {
		panic("VisitorSource is required")
	}
	logger := services.Telemetry.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", healthHandler(services.Visitors))
	mux.Handle("HEAD /healthz", healthHandler(services.Visitors))
	if services.Telemetry.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(services.Telemetry.Gatherer))
	}

	visitors := Visitors(services.Visitors, services.Config.Cookie, logger)
	registerAPIRoutes(mux, visitors, logger)
	registerViewRoutes(mux, visitors, Guard(services.Config.Guard))

	return Chain(mux, Recover(logger), Logging(logger))
}

func registerAPIRoutes(mux *http.ServeMux, visitors func(http.Handler) http.Handler, logger *slog.Logger) {
	auth := &AuthHandlers{Logger: logger}
	carts := &CartHandlers{}

	api := map[string]http.HandlerFunc{
		"POST /api/auth/login":            auth.Login,
		"POST /api/auth/signup":           auth.SignUp,
		"POST /api/auth/logout":           auth.Logout,
		"GET /api/auth/status":            auth.Status,
		"GET /api/cart":                   carts.List,
		"GET /api/cart/count":             carts.Count,
		"POST /api/cart/items":            carts.AddItem,
		"DELETE /api/cart/items/{cartId}": carts.RemoveItem,
	}
	for pattern, h := range api {
		mux.Handle(pattern, visitors(h))
	}
}

func registerViewRoutes(mux *http.ServeMux, visitors, guard func(http.Handler) http.Handler) {
	views := &ViewHandlers{}

	pages := map[string]http.HandlerFunc{
		"GET /{$}":       views.Landing,
		"GET /login":     views.Login,
		"GET /signup":    views.SignUp,
		"GET /dashboard": views.Dashboard,
		"GET /profile":   views.Profile,
		"GET /cart":      views.Cart,
		"GET /admin":     views.Admin,
	}
	for pattern, h := range pages {
		mux.Handle(pattern, Chain(h, visitors, guard))
	}

	// Anything else goes back to the landing page.
	mux.Handle("/", http.RedirectHandler("/", http.StatusSeeOther))
}
