package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	HTTP    HTTPConfig
	Handler HandlerConfig
	Relay   RelayConfig
	Lambda  LambdaConfig
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr              string
	MetricsPath       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// HandlerConfig holds handler configuration
type HandlerConfig struct {
	// Timeout caps a whole invocation, body transfer included. Zero disables it.
	Timeout       time.Duration
	EnableHealth  bool
	EnableMetrics bool
	EnableTracing bool
	Platform      string // auto-detected if empty
}

// RelayConfig holds the upstream fetch policy
type RelayConfig struct {
	// FetchTimeout bounds connecting to the upstream and receiving its response headers.
	FetchTimeout    time.Duration
	MaxRedirects    int
	DefaultFilename string
	DefaultType     string
	// BrowserHeaders are sent on every upstream request.
	BrowserHeaders map[string]string
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	// MaxResponseBytes rejects buffered payloads above the limit. Zero disables it.
	MaxResponseBytes int64
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}
	if c.HTTP.Addr == "" {
		errors = append(errors, "HTTP_ADDR is required")
	}
	if c.HTTP.MetricsPath != "" && !strings.HasPrefix(c.HTTP.MetricsPath, "/") {
		errors = append(errors, "HTTP_METRICS_PATH must start with /")
	}
	if c.Handler.Timeout < 0 {
		errors = append(errors, "HANDLER_TIMEOUT cannot be negative")
	}
	if c.Relay.FetchTimeout <= 0 {
		errors = append(errors, "RELAY_FETCH_TIMEOUT must be positive")
	}
	if c.Relay.MaxRedirects < 0 {
		errors = append(errors, "RELAY_MAX_REDIRECTS cannot be negative")
	}
	if c.Relay.DefaultFilename == "" {
		errors = append(errors, "RELAY_DEFAULT_FILENAME cannot be empty")
	}
	if c.Lambda.MaxResponseBytes < 0 {
		errors = append(errors, "LAMBDA_MAX_RESPONSE_BYTES cannot be negative")
	}
	switch c.Handler.Platform {
	case "", "auto", "http", "lambda":
	default:
		errors = append(errors, fmt.Sprintf("HANDLER_PLATFORM %q is not supported", c.Handler.Platform))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	if c.IsLocal() {
		// No collector to ship spans to locally
		c.Handler.EnableTracing = false
	}

	if c.IsProduction() {
		c.Handler.EnableMetrics = true
		if c.LogLevel == "debug" {
			c.LogLevel = "info"
		}
	}
}

// IsLocal returns true if running in local/development environment
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

