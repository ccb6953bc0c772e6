package config

import (
	"github.com/spf13/viper"
)

// newViper returns a viper instance bound to the process environment with
// every known key defaulted.
func newViper() *viper.Viper {
	d := DefaultConfig()
	v := viper.New()
	v.AutomaticEnv()

	// Core
	v.SetDefault("ENVIRONMENT", d.Environment)
	v.SetDefault("SERVICE_NAME", d.ServiceName)
	v.SetDefault("LOG_LEVEL", d.LogLevel)
	v.SetDefault("SERVICE_VERSION", d.Version)

	// HTTP server
	v.SetDefault("HTTP_ADDR", d.HTTP.Addr)
	v.SetDefault("HTTP_METRICS_PATH", d.HTTP.MetricsPath)
	v.SetDefault("HTTP_READ_HEADER_TIMEOUT", d.HTTP.ReadHeaderTimeout)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", d.HTTP.ShutdownTimeout)

	// Handler
	v.SetDefault("HANDLER_TIMEOUT", d.Handler.Timeout)
	v.SetDefault("HANDLER_ENABLE_HEALTH", d.Handler.EnableHealth)
	v.SetDefault("HANDLER_ENABLE_METRICS", d.Handler.EnableMetrics)
	v.SetDefault("HANDLER_ENABLE_TRACING", d.Handler.EnableTracing)
	v.SetDefault("HANDLER_PLATFORM", d.Handler.Platform)

	// Relay
	v.SetDefault("RELAY_FETCH_TIMEOUT", d.Relay.FetchTimeout)
	v.SetDefault("RELAY_MAX_REDIRECTS", d.Relay.MaxRedirects)
	v.SetDefault("RELAY_DEFAULT_FILENAME", d.Relay.DefaultFilename)
	v.SetDefault("RELAY_DEFAULT_TYPE", d.Relay.DefaultType)
	v.SetDefault("RELAY_USER_AGENT", DefaultUserAgent)
	v.SetDefault("RELAY_ACCEPT", DefaultAccept)
	v.SetDefault("RELAY_ACCEPT_LANGUAGE", DefaultAcceptLanguage)
	v.SetDefault("RELAY_ACCEPT_ENCODING", DefaultAcceptEncoding)

	// Lambda
	v.SetDefault("LAMBDA_MAX_RESPONSE_BYTES", d.Lambda.MaxResponseBytes)

	return v
}

// parse reads configuration from the environment
func parse() (*Config, error) {
	v := newViper()

	headers := DefaultBrowserHeaders()
	headers["User-Agent"] = v.GetString("RELAY_USER_AGENT")
	headers["Accept"] = v.GetString("RELAY_ACCEPT")
	headers["Accept-Language"] = v.GetString("RELAY_ACCEPT_LANGUAGE")
	headers["Accept-Encoding"] = v.GetString("RELAY_ACCEPT_ENCODING")
	for key, value := range headers {
		if value == "" {
			delete(headers, key)
		}
	}

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Version:     v.GetString("SERVICE_VERSION"),

		HTTP: HTTPConfig{
			Addr:              v.GetString("HTTP_ADDR"),
			MetricsPath:       v.GetString("HTTP_METRICS_PATH"),
			ReadHeaderTimeout: v.GetDuration("HTTP_READ_HEADER_TIMEOUT"),
			ShutdownTimeout:   v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		},

		Handler: HandlerConfig{
			Timeout:       v.GetDuration("HANDLER_TIMEOUT"),
			EnableHealth:  v.GetBool("HANDLER_ENABLE_HEALTH"),
			EnableMetrics: v.GetBool("HANDLER_ENABLE_METRICS"),
			EnableTracing: v.GetBool("HANDLER_ENABLE_TRACING"),
			Platform:      v.GetString("HANDLER_PLATFORM"),
		},

		Relay: RelayConfig{
			FetchTimeout:    v.GetDuration("RELAY_FETCH_TIMEOUT"),
			MaxRedirects:    v.GetInt("RELAY_MAX_REDIRECTS"),
			DefaultFilename: v.GetString("RELAY_DEFAULT_FILENAME"),
			DefaultType:     v.GetString("RELAY_DEFAULT_TYPE"),
			BrowserHeaders:  headers,
		},

		Lambda: LambdaConfig{
			MaxResponseBytes: v.GetInt64("LAMBDA_MAX_RESPONSE_BYTES"),
		},
	}

	return cfg, nil
}
