// Package main is the entry point for the dispatch daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewaykit/httpdispatch/internal/config"
	"github.com/gatewaykit/httpdispatch/internal/dispatch"
	"github.com/gatewaykit/httpdispatch/internal/health"
	"github.com/gatewaykit/httpdispatch/internal/interceptor"
	"github.com/gatewaykit/httpdispatch/internal/observability"
	"github.com/gatewaykit/httpdispatch/internal/route"
	"github.com/gatewaykit/httpdispatch/internal/util"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runApplication(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("DISPATCHD_CONFIG_PATH", "configs/dispatchd.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("DISPATCHD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("DISPATCHD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("dispatchd version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// fatal logs the error and exits.
func fatal(logger observability.Logger, msg string, err error) {
	logger.Error(msg, observability.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting dispatchd",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(logger, "failed to load configuration", err)
	}

	logger.Info("configuration loaded",
		observability.String("service", cfg.ServiceName),
		observability.String("addr", cfg.Server.Addr),
		observability.Int("routes", len(cfg.Routes)),
	)

	return cfg
}

// application holds all application components.
type application struct {
	dispatcher    *dispatch.Dispatcher
	table         *route.Table
	server        *http.Server
	healthChecker *health.Checker
	config        *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	mapping := dispatch.NewHandlerMapping(route.Strategy{},
		dispatch.WithLogger(logger),
		dispatch.WithRegistryOptions(
			dispatch.WithNamingStrategy(route.DefaultNamingStrategy()),
			dispatch.WithCorsPolicyProvider(route.CorsPolicyProvider()),
		),
		dispatch.WithInterceptors(buildInterceptors(cfg, logger)...),
	)

	table := route.NewTable(mapping, builtinHandlers(), route.WithTableLogger(logger))
	if err := table.Apply(cfg.Routes); err != nil {
		fatal(logger, "failed to load routes", err)
	}

	healthChecker := health.NewChecker(version)
	healthChecker.RegisterCheck("routes", func() error {
		if table.Len() == 0 {
			return fmt.Errorf("routing table is empty")
		}
		return nil
	})

	dispatcher := dispatch.NewDispatcher(mapping, dispatch.WithDispatcherLogger(logger))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           dispatcher,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:       cfg.Server.IdleTimeout.Duration(),
	}

	return &application{
		dispatcher:    dispatcher,
		table:         table,
		server:        server,
		healthChecker: healthChecker,
		config:        cfg,
	}
}

// buildInterceptors assembles the interceptor stack. Order matters: the
// outermost interceptors run their PreHandle first and their completion
// last.
func buildInterceptors(cfg *config.Config, logger observability.Logger) []dispatch.Interceptor {
	interceptors := []dispatch.Interceptor{
		interceptor.NewRequestID(),
		interceptor.NewLogging(logger),
		interceptor.NewMetrics(),
		interceptor.NewTracing(),
	}

	if cfg.RateLimit != nil {
		interceptors = append(interceptors, interceptor.NewRateLimit(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.Burst,
			interceptor.WithRateLimitLogger(logger),
		))
	}

	if cfg.CircuitBreaker != nil {
		interceptors = append(interceptors, interceptor.NewCircuitBreaker(
			*cfg.CircuitBreaker,
			interceptor.WithCircuitBreakerLogger(logger),
		))
	}

	return interceptors
}

// runApplication runs the HTTP server and handles shutdown.
func runApplication(app *application, configPath string, logger observability.Logger) {
	go func() {
		logger.Info("starting server", observability.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server error", err)
		}
	}()

	startMetricsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	if !app.config.Metrics.Enabled {
		return
	}

	addr := app.config.Metrics.Addr
	path := app.config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	go startMetricsServer(addr, path, app.healthChecker, logger)
}

// startConfigWatcher starts the configuration watcher. Only the routing
// table is reloaded at runtime; listener changes need a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reapplying routes",
			observability.Int("routes", len(newCfg.Routes)),
		)
		if applyErr := app.table.Apply(newCfg.Routes); applyErr != nil {
			logger.Error("failed to apply routes", observability.Error(applyErr))
		}
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownTimeout := app.config.Server.ShutdownTimeout.Duration()
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	logger.Info("dispatchd stopped")
}

// startMetricsServer starts the metrics HTTP server.
func startMetricsServer(addr, path string, healthChecker *health.Checker, logger observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	mux.HandleFunc("/live", healthChecker.LivenessHandler())

	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// builtinHandlers provides the handler targets available to a standalone
// dispatchd. Embedders replace this with their own provider.
func builtinHandlers() route.HandlerProvider {
	return route.HandlerProviderFunc(func(target, entryPoint string) (dispatch.HandlerFunc, error) {
		switch target {
		case "echo":
			return echoHandler(entryPoint), nil
		case "health":
			return healthHandler, nil
		default:
			return nil, fmt.Errorf("unknown handler target %q", target)
		}
	})
}

// echoHandler reflects the matched request back as JSON.
func echoHandler(entryPoint string) dispatch.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) (any, error) {
		body := map[string]any{
			"entryPoint": entryPoint,
			"method":     r.Method,
			"path":       r.URL.Path,
		}
		if params := util.PathParamsFromContext(r.Context()); len(params) > 0 {
			body["params"] = params
		}
		if pattern := util.MatchedPatternFromContext(r.Context()); pattern != "" {
			body["pattern"] = pattern
		}

		w.Header().Set("Content-Type", "application/json")
		return nil, json.NewEncoder(w).Encode(body)
	}
}

// healthHandler reports liveness.
func healthHandler(w http.ResponseWriter, _ *http.Request) (any, error) {
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(`{"status":"ok"}`))
	return nil, err
}
