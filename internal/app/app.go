package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"ncbproc/internal/config"
	apierrors "ncbproc/internal/errors"
	"ncbproc/internal/infrastructure"
	customMiddleware "ncbproc/internal/middleware"
	"ncbproc/internal/services"
	handlers "ncbproc/internal/transport/http"
	"ncbproc/pkg/contracts"
)

// Options adjust how New builds the application.
type Options struct {
	// Logger replaces the logger built from the logging config.
	Logger *slog.Logger
	// Version overrides the build version reported by the service.
	Version string
	// Listener is served instead of listening on the configured address.
	Listener net.Listener
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders

	listener     net.Listener
	logFile      *os.File
	shutdownOnce sync.Once
	shutdownErr  error
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Processing *services.ProcessingService
	Health     *services.HealthService
	Errors     *apierrors.ErrorHandler
}

// New wires configuration, logging, telemetry, services and the router
// into an application ready to Run.
func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	version := opts.Version
	if version == "" {
		version = contracts.Version
	}

	a := &Application{
		Config:   cfg,
		Logger:   opts.Logger,
		listener: opts.Listener,
	}
	if a.Logger == nil {
		logger, file, err := infrastructure.NewLogger(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.Logger, a.logFile = logger, file
	}

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, version, a.Logger)
	if err != nil {
		a.closeLog()
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.initializeServices(version); err != nil {
		_ = providers.Shutdown(context.Background())
		a.closeLog()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()

	a.Logger.Info("application initialized",
		slog.String("version", version),
		slog.String("addr", a.Server.Addr),
		slog.String("ruleset", cfg.Processing.Ruleset),
		slog.String("config", cfg.Source))
	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices(version string) error {
	processing, err := services.NewProcessingService(a.Config.Processing, a.OTelProviders.Metrics, a.Logger)
	if err != nil {
		return err
	}

	a.Services = &ServiceContainer{
		Processing: processing,
		Health:     services.NewHealthService(version, processing, a.Logger),
		Errors:     apierrors.NewErrorHandler(a.Logger, a.Config.Server.Development),
	}
	return nil
}

// setupRouter configures the HTTP router with all routes. Middleware order:
// RequestID, RealIP, OTel, logging and recovery, security headers, CORS and
// the request timeout. Upload routes add rate limiting and a body limit.
func (a *Application) setupRouter() {
	errs := a.Services.Errors
	r := chi.NewRouter()
	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)

	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders).Handler)
	r.Use(apierrors.NewErrorMiddleware(errs, a.Logger).Handler)
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.Logger,
	}))
	r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))

	health := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/version", health.Version)

	process := handlers.NewProcessHandler(a.Services.Processing, a.Config.Processing.MaxWarnings, a.Logger, errs)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/rulesets", handlers.NewRulesetHandler(a.Logger, errs).Routes())

		r.Group(func(r chi.Router) {
			if rl := a.Config.Server.RateLimit; rl.Enabled {
				r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
			}
			r.Use(customMiddleware.MaxBodySize(a.Config.MaxUploadBytes(), errs))
			r.Post("/process", process.Process)
			r.Post("/inspect", process.Inspect)
		})
	})

	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, errs))

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts
// down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.Server.Addr); err != nil {
			_ = a.Shutdown(context.Background())
			return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
		}
	}

	a.Logger.InfoContext(ctx, "server listening", slog.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down", slog.String("reason", context.Cause(gctx).Error()))
		return a.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown stops accepting requests and waits up to the configured
// shutdown timeout for in-flight ones before releasing telemetry and the
// log file. Calls after the first return the first result.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		defer cancel()

		start := time.Now()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		if a.OTelProviders != nil {
			if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
				a.Logger.Error("error shutting down OpenTelemetry", slog.String("error", err.Error()))
			}
		}

		a.Logger.Info("application shutdown complete", slog.Duration("duration", time.Since(start)))
		a.closeLog()
	})
	return a.shutdownErr
}

func (a *Application) closeLog() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}
