package config

import (
	"fmt"
	"strings"

	"github.com/gatewaykit/httpdispatch/internal/util"
)

// Config is the top-level service configuration.
type Config struct {
	// ServiceName identifies the service in logs and metrics.
	ServiceName string `yaml:"serviceName,omitempty"`

	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log,omitempty"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// RateLimit configures the global request rate limiter.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`

	// CircuitBreaker configures the per-handler circuit breaker.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty"`

	// Routes is the routing table.
	Routes []Route `yaml:"routes,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is json or console.
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// RateLimitConfig configures the request rate limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`

	// Burst is the maximum burst size. Defaults to the sustained rate.
	Burst int `yaml:"burst,omitempty"`
}

// CircuitBreakerConfig configures the per-handler circuit breaker.
type CircuitBreakerConfig struct {
	// MaxRequests is the number of probe requests allowed half-open.
	MaxRequests uint32 `yaml:"maxRequests,omitempty"`

	// Interval is the cyclic period for clearing counts while closed.
	Interval Duration `yaml:"interval,omitempty"`

	// Timeout is how long the breaker stays open before probing.
	Timeout Duration `yaml:"timeout,omitempty"`

	// FailureThreshold is the consecutive failure count that trips the
	// breaker.
	FailureThreshold uint32 `yaml:"failureThreshold,omitempty"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "dispatchd",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return util.NewConfigError("server.addr", "must not be empty")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return util.NewConfigError("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return util.NewConfigError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}

	if c.RateLimit != nil && c.RateLimit.RequestsPerSecond <= 0 {
		return util.NewConfigError("rateLimit.requestsPerSecond", "must be positive")
	}

	seen := make(map[string]bool, len(c.Routes))
	for i := range c.Routes {
		route := &c.Routes[i]
		if err := route.Validate(); err != nil {
			return err
		}
		if seen[route.Name] {
			return util.NewConfigError("routes", fmt.Sprintf("duplicate route name %q", route.Name))
		}
		seen[route.Name] = true
	}

	return nil
}
