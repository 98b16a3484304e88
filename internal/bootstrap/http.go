package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/storefront-api/config"
	httpx "github.com/target/storefront-api/internal/http"
)

const defaultShutdownTimeout = 15 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPServer builds the storefront server without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := BuildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: cfg.Services,
		App:      appCfg,
	})

	// Guard against empty addr to avoid listening on Go default
	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		// Protected routes may wait out the resolve grace before answering.
		WriteTimeout: 30*time.Second + appCfg.Storefront.ResolveGrace,
		IdleTimeout:  120 * time.Second,
	}
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services ServiceContainer
	App      *config.AppConfig
}

// BuildHTTPHandler assembles the router from the service container.
func BuildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	httpCfg := cfg.App.HTTP
	return httpx.NewRouter(httpx.RouterServices{
		Visitors: cfg.Services.Hub,
		Config: httpx.RouterConfig{
			Cookie: httpx.VisitorCookieConfig{
				Name:   httpCfg.VisitorCookieName,
				Domain: httpCfg.CookieDomain,
				Secure: httpCfg.VisitorCookieSecure,
				MaxAge: httpCfg.VisitorCookieMaxAge,
			},
			Guard: httpx.GuardConfig{ResolveGrace: cfg.App.Storefront.ResolveGrace},
		},
		Telemetry: httpx.RouterTelemetry{
			Logger:   cfg.Logger,
			Gatherer: cfg.Services.Observability.Gatherer,
		},
	})
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
