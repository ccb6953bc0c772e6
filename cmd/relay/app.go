package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"downloadrelay/config"
	"downloadrelay/handler"
	"downloadrelay/handler/platforms"
	"downloadrelay/internal/relay"
	"downloadrelay/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Application holds the assembled relay.
type Application struct {
	cfg      *config.Config
	provider *observability.DefaultProvider
	factory  *handler.Factory
	gatherer prometheus.Gatherer
	logger   observability.Logger
}

// loadConfiguration loads the configuration and applies command-line overrides.
func loadConfiguration(logLevel, platform, addr string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if platform != "" {
		cfg.Handler.Platform = platform
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	return cfg, nil
}

// buildApplication wires observability, the upstream client, the relay
// worker and the handler factory. A nil registry uses the Prometheus
// default registry.
func buildApplication(cfg *config.Config, registry *prometheus.Registry) *Application {
	obsCfg := &observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		obsCfg.Registerer = registry
		gatherer = registry
	}

	provider := observability.NewProvider(obsCfg)

	client := relay.NewClient(cfg.Relay, provider.Logger("fetcher"), provider.Metrics("fetcher"))
	worker := relay.NewWorker(client, cfg.Relay, provider.Logger("relay"), provider.Metrics("relay"))

	return &Application{
		cfg:      cfg,
		provider: provider,
		factory:  handler.NewFactory(worker, provider).WithHandlerConfig(cfg.Handler),
		gatherer: gatherer,
		logger:   provider.Logger("main"),
	}
}

// Close flushes logs.
func (a *Application) Close() {
	_ = a.provider.Close()
}

// httpHandler routes the metrics endpoint and hands everything else to the relay.
func (a *Application) httpHandler() http.Handler {
	mux := http.NewServeMux()

	if a.cfg.Handler.EnableMetrics && a.cfg.HTTP.MetricsPath != "" {
		mux.Handle(a.cfg.HTTP.MetricsPath, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", platforms.NewHTTPAdapter(a.factory.CreateHTTP()))

	return mux
}

// startApplication runs the relay on the configured platform until it stops.
func startApplication(ctx context.Context, app *Application) error {
	platform := app.cfg.Handler.Platform
	if platform == "" || platform == "auto" {
		platform = handler.DetectPlatform()
	}

	app.logger.Info(ctx, "Starting download relay", observability.Fields{
		"platform":    platform,
		"environment": app.cfg.Environment,
		"version":     app.cfg.Version,
	})

	switch platform {
	case handler.PlatformLambda:
		adapter := platforms.NewLambdaAdapter(app.factory.CreateLambda(), &platforms.LambdaConfig{
			MaxResponseBytes: app.cfg.Lambda.MaxResponseBytes,
		})
		adapter.Start()
		return nil
	default:
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveHTTP(ctx, app)
	}
}

// serveHTTP serves until ctx is cancelled, then drains in-flight downloads
// for up to the shutdown timeout.
func serveHTTP(ctx context.Context, app *Application) error {
	server := &http.Server{
		Addr:              app.cfg.HTTP.Addr,
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: app.cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(gctx, "HTTP server listening", observability.Fields{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info(context.Background(), "Shutting down HTTP server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.HTTP.ShutdownTimeout)
		defer cancel()

		start := time.Now()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		app.logger.Info(context.Background(), "Shutdown complete", observability.Fields{
			"drain_ms": time.Since(start).Milliseconds(),
		})
		return nil
	})

	return g.Wait()
}
