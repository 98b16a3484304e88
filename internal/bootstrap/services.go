package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/storefront-api/config"
	"github.com/target/storefront-api/internal/adapters/idp"
	redisadapter "github.com/target/storefront-api/internal/adapters/redis"
	"github.com/target/storefront-api/internal/data"
	"github.com/target/storefront-api/internal/observability/metrics"
	"github.com/target/storefront-api/internal/observability/statsd"
	"github.com/target/storefront-api/internal/ports"
	"github.com/target/storefront-api/internal/service"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds the storefront runtime.
type ServiceContainer struct {
	Hub           *service.ReconcilerHub
	Caches        *redisadapter.LocalCacheStore
	Profiles      *data.ProfileRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Metrics     *metrics.Recorder
	Gatherer    prometheus.Gatherer // nil when exposition is disabled
	MetricsSink *statsd.Client
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.Observability.MetricsSink != nil {
		if err := c.Observability.MetricsSink.Close(); err != nil {
			return fmt.Errorf("close statsd client: %w", err)
		}
	}
	return nil
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          data.DBTX
	RedisClient redis.UniversalClient
	Identity    ports.IdentityBackend
	Logger      *slog.Logger
}

// buildObservability configures the Prometheus registry and the optional StatsD mirror.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var sink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			sink = client
		}
	}

	var (
		registerer prometheus.Registerer
		gatherer   prometheus.Gatherer
	)
	if cfg.Prometheus.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer, gatherer = reg, reg
	}

	opts := metrics.RecorderOptions{Registerer: registerer}
	if sink != nil {
		opts.Sink = sink
	}

	return ObservabilityContainer{
		Metrics:     metrics.NewRecorder(opts),
		Gatherer:    gatherer,
		MetricsSink: sink,
	}
}

// NewIdentityFactory binds one idp.Client per visitor to the shared backend.
func NewIdentityFactory(backend ports.IdentityBackend, poll time.Duration, logger *slog.Logger) service.IdentityFactory {
	return func(visitorID string, cache ports.LocalCache) (ports.IdentityClient, error) {
		client, err := idp.NewClient(idp.Options{
			Backend:      backend,
			Cache:        cache,
			PollInterval: poll,
			Logger:       logger.With("visitor_id", visitorID),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// NewServices wires the storefront runtime from connected infrastructure.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil || deps.Config == nil {
		panic("service deps with config are required")
	}
	if deps.DB == nil {
		panic("database is required")
	}
	if deps.RedisClient == nil {
		panic("redis client is required")
	}
	if deps.Identity == nil {
		panic("identity backend is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)

	caches := redisadapter.NewLocalCacheStore(deps.RedisClient, redisadapter.LocalCacheOptions{
		Prefix: cfg.LocalCache.Prefix,
		TTL:    cfg.LocalCache.TTL,
	})
	profiles := data.NewProfileRepo(deps.DB, data.ProfileRepoOptions{Logger: logger})

	hub := service.NewReconcilerHub(service.ReconcilerHubOptions{
		Deps: service.HubDeps{
			Caches:      caches,
			Profiles:    profiles,
			NewIdentity: NewIdentityFactory(deps.Identity, cfg.Auth.SessionPollInterval, logger),
		},
		Config: service.HubConfig{
			Capacity:   cfg.Storefront.ReconcilerCapacity,
			IdleTTL:    cfg.Storefront.ReconcilerIdleTTL,
			CartPolicy: cfg.Storefront.CartLogoutPolicy,
		},
		Telemetry: service.HubTelemetry{
			Logger:  logger,
			Metrics: observability.Metrics,
		},
	})

	return ServiceContainer{
		Hub:           hub,
		Caches:        caches,
		Profiles:      profiles,
		Observability: observability,
	}
}

// ServiceOrchestrationConfig contains what RunServicesWithShutdown drives.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown serves HTTP and runs the reconciler hub until
// SIGINT/SIGTERM or the first failure, then drains both.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return cfg.Services.Hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down services...")
		// The parent context is already done; shutdown gets its own deadline.
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(gctx),
			Server:  server,
			Timeout: cfg.Config.HTTP.ShutdownTimeout,
			Logger:  logger,
		})
	})

	err := g.Wait()
	if err != nil {
		logger.Error("service error", "error", err)
	}
	return err
}
